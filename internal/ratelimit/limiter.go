// Package ratelimit provides the outbound request budget primitives: a token
// bucket shared by a worker class and a per-wallet minimum-gap cooldown.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Worker-class budgets for the upstream HTTP API.
const (
	HotRatePerSec  = 10
	HotBurst       = 20
	ColdRatePerSec = 5
	ColdBurst      = 10
)

// Limiter is a blocking token bucket. Acquire consumes one token, waiting
// until one is available; refill is continuous at the steady rate up to the
// burst capacity. Safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter with steady rate r tokens/sec and burst capacity b.
func New(r float64, b int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(r), b)}
}

// NewHot returns the limiter for the hot worker class (10/s, burst 20).
func NewHot() *Limiter { return New(HotRatePerSec, HotBurst) }

// NewCold returns the limiter for the cold worker class (5/s, burst 10).
func NewCold() *Limiter { return New(ColdRatePerSec, ColdBurst) }

// Acquire blocks until a token is available or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
