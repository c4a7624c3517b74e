package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Per-wallet minimum gaps between upstream calls.
const (
	HotCooldown  = 1 * time.Second
	ColdCooldown = 5 * time.Second
)

// Cooldown enforces a uniform minimum gap between calls for the same wallet,
// reducing upstream burst even when different wallets share one token bucket.
type Cooldown struct {
	gap time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCooldown creates a Cooldown with the given minimum gap.
func NewCooldown(gap time.Duration) *Cooldown {
	return &Cooldown{
		gap:   gap,
		last:  make(map[string]time.Time),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Wait sleeps just long enough that at least the configured gap has elapsed
// since the last call for this wallet, then records the call.
func (c *Cooldown) Wait(ctx context.Context, wallet string) error {
	c.mu.Lock()
	now := c.now()
	prev, seen := c.last[wallet]
	var wait time.Duration
	if seen {
		if elapsed := now.Sub(prev); elapsed < c.gap {
			wait = c.gap - elapsed
		}
	}
	c.last[wallet] = now.Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return c.sleep(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
