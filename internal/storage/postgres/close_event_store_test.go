package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polycopy/internal/domain"
)

func TestCloseEventStore_DuplicatesIgnored(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCloseEventStore(pool)

	events := []*domain.PositionClose{
		{Wallet: "0xaaa", MarketID: "0xm1", ClosedAt: 1000, Reason: domain.CloseReasonManual, Raw: []byte(`{"size":100}`)},
		{Wallet: "0xaaa", MarketID: "0xm2", ClosedAt: 1000, Reason: domain.CloseReasonMarketClosed},
	}

	require.NoError(t, store.EmitClosed(ctx, events))
	require.NoError(t, store.EmitClosed(ctx, events))

	got, err := store.GetClosed(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCloseEventStore_FirstWriteWins(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCloseEventStore(pool)

	require.NoError(t, store.EmitClosed(ctx, []*domain.PositionClose{
		{Wallet: "0xaaa", MarketID: "0xm1", ClosedAt: 1000, Reason: domain.CloseReasonManual},
	}))
	require.NoError(t, store.EmitClosed(ctx, []*domain.PositionClose{
		{Wallet: "0xaaa", MarketID: "0xm1", ClosedAt: 1000, Reason: domain.CloseReasonMarketClosed},
	}))

	got, err := store.GetClosed(ctx, "0xaaa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.CloseReasonManual, got[0].Reason)
}

func TestCloseEventStore_ReclosedLaterIsDistinct(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCloseEventStore(pool)

	require.NoError(t, store.EmitClosed(ctx, []*domain.PositionClose{
		{Wallet: "0xaaa", MarketID: "0xm1", ClosedAt: 1000, Reason: domain.CloseReasonManual},
		{Wallet: "0xaaa", MarketID: "0xm1", ClosedAt: 2000, Reason: domain.CloseReasonManual},
	}))

	got, err := store.GetClosed(ctx, "0xaaa")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2000), got[0].ClosedAt, "newest first")
}
