package poller

import (
	"context"
	"fmt"
	"log"
	"time"

	"polycopy/internal/retry"
)

const (
	// HotInterval is the target spacing between hot sweeps.
	HotInterval = 2 * time.Second

	// HotErrorBudget is the number of non-timeout cycle failures tolerated
	// within a single sweep before the process gives up and lets the
	// supervisor restart it.
	HotErrorBudget = 50
)

// HotOptions configures the hot poller.
type HotOptions struct {
	Cycle    *Cycle
	Interval time.Duration
	Budget   int
	Logger   *log.Logger
}

const tierHot = "hot"

// Hot sweeps the follow set on a tight interval. It holds no lock; running
// two replicas only wastes rate budget, it does not corrupt state.
type Hot struct {
	cycle    *Cycle
	interval time.Duration
	budget   int
	logger   *log.Logger
}

// NewHot creates a hot poller.
func NewHot(opts HotOptions) *Hot {
	interval := opts.Interval
	if interval <= 0 {
		interval = HotInterval
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = HotErrorBudget
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Hot{cycle: opts.Cycle, interval: interval, budget: budget, logger: logger}
}

// Run sweeps until ctx is cancelled. Exhausting the error budget within one
// sweep returns an error; the caller is expected to exit non-zero.
func (h *Hot) Run(ctx context.Context) error {
	h.logger.Printf("hot poller starting, interval=%s budget=%d", h.interval, h.budget)

	for {
		start := time.Now()

		if err := h.sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		remaining := h.interval - time.Since(start)
		if err := sleepCtx(ctx, remaining); err != nil {
			return nil
		}
	}
}

func (h *Hot) sweep(ctx context.Context) error {
	wallets, err := h.cycle.stores.Follows.ActiveFollows(ctx)
	if err != nil {
		h.logger.Printf("read follow set: %v", err)
		return sleepCtx(ctx, h.interval)
	}
	if len(wallets) == 0 {
		return sleepCtx(ctx, h.interval)
	}

	sweepStart := time.Now()
	defer func() {
		h.cycle.metrics.SweepDuration.WithLabelValues(tierHot).Observe(time.Since(sweepStart).Seconds())
	}()

	// The budget resets every sweep; a wallet failing persistently burns one
	// unit per sweep, not one unit forever.
	failures := 0
	for _, wallet := range wallets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := h.cycle.Run(ctx, wallet); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if retry.IsTimeout(err) {
				h.logger.Printf("cycle timeout for %s (tolerated): %v", wallet, err)
				continue
			}
			failures++
			h.cycle.metrics.PollErrors.WithLabelValues(tierHot).Inc()
			h.logger.Printf("cycle failed for %s (%d/%d): %v", wallet, failures, h.budget, err)
			if failures >= h.budget {
				return fmt.Errorf("hot sweep error budget exhausted: %d failures", failures)
			}
			continue
		}
		h.cycle.metrics.PollCycles.WithLabelValues(tierHot).Inc()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
