package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstAdmitsImmediately(t *testing.T) {
	l := New(10, 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "burst capacity should admit without sleeping")
}

func TestLimiter_SustainedRateThrottles(t *testing.T) {
	// 100/s with burst 1: 10 acquires past the first must take ~90ms.
	l := New(100, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := New(1, 1)
	require.NoError(t, l.Acquire(context.Background())) // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(ctx))
}
