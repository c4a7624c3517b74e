// Package poller runs the tiered polling engine: per-wallet poll cycles
// driven by the hot (follow set) and cold (remaining traders) workers.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"polycopy/internal/domain"
	"polycopy/internal/observability"
	"polycopy/internal/ratelimit"
	"polycopy/internal/reconcile"
	"polycopy/internal/storage"
	"polycopy/internal/upstream"
)

// Venue is the read surface of the upstream adapter a cycle needs.
type Venue interface {
	TradesPage(ctx context.Context, wallet string, limit, offset int) ([]*domain.Trade, error)
	Positions(ctx context.Context, wallet string) ([]*domain.Position, error)
}

// Stores bundles the persistence surfaces a cycle writes through.
type Stores struct {
	Trades    storage.TradeStore
	Positions storage.PositionStore
	Closes    storage.CloseEventStore
	PollState storage.PollStateStore
	Follows   storage.FollowStore
	Locks     storage.LockStore
}

// CycleOptions configures a Cycle.
type CycleOptions struct {
	Venue      Venue
	Reconciler *reconcile.Reconciler
	Limiter    *ratelimit.Limiter
	Cooldown   *ratelimit.Cooldown
	Stores     Stores
	Metrics    *observability.Metrics
	Logger     *log.Logger

	// PageLimit overrides the trades page size; defaults to the venue cap.
	PageLimit int
	// Now overrides the clock; defaults to wall time in ms.
	Now func() int64
}

// CycleStats summarizes one completed cycle for a wallet.
type CycleStats struct {
	TradesUpserted int
	PositionsSeen  int
	Closed         int
}

// Cycle runs one poll pass for a single wallet: ingest new trades above the
// watermark, refresh the positions snapshot, reconcile disappearances, and
// advance the watermark.
type Cycle struct {
	venue      Venue
	reconciler *reconcile.Reconciler
	limiter    *ratelimit.Limiter
	cooldown   *ratelimit.Cooldown
	stores     Stores
	metrics    *observability.Metrics
	logger     *log.Logger
	pageLimit  int
	now        func() int64
}

// NewCycle creates a Cycle.
func NewCycle(opts CycleOptions) *Cycle {
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = upstream.TradesPageLimit
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	return &Cycle{
		venue:      opts.Venue,
		reconciler: opts.Reconciler,
		limiter:    opts.Limiter,
		cooldown:   opts.Cooldown,
		stores:     opts.Stores,
		metrics:    metrics,
		logger:     logger,
		pageLimit:  pageLimit,
		now:        now,
	}
}

// Run executes a full cycle for wallet. A wallet with no poll state walks the
// complete trade history, which is how new traders are backfilled.
func (c *Cycle) Run(ctx context.Context, wallet string) (*CycleStats, error) {
	if err := c.cooldown.Wait(ctx, wallet); err != nil {
		return nil, err
	}

	watermark, err := c.watermark(ctx, wallet)
	if err != nil {
		return nil, err
	}

	rows, maxSeen, err := c.collectTrades(ctx, wallet, watermark)
	if err != nil {
		return nil, fmt.Errorf("collect trades for %s: %w", wallet, err)
	}

	stats := &CycleStats{}
	for start := 0; start < len(rows); start += storage.MaxTradeBatch {
		end := start + storage.MaxTradeBatch
		if end > len(rows) {
			end = len(rows)
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		n, err := c.stores.Trades.UpsertTrades(ctx, rows[start:end])
		if err != nil {
			return nil, fmt.Errorf("upsert trades for %s: %w", wallet, err)
		}
		stats.TradesUpserted += n
		c.metrics.TradesUpserted.Add(float64(n))
	}

	curr, err := c.venue.Positions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch positions for %s: %w", wallet, err)
	}
	stats.PositionsSeen = len(curr)

	prev, err := c.stores.Positions.GetCurrent(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("read stored positions for %s: %w", wallet, err)
	}

	nowMs := c.now()
	res, err := c.reconciler.Reconcile(ctx, wallet, prev, curr, nowMs)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", wallet, err)
	}

	if len(res.Closed) > 0 {
		if err := c.stores.Closes.EmitClosed(ctx, res.Closed); err != nil {
			return nil, fmt.Errorf("emit close events for %s: %w", wallet, err)
		}
		closedIDs := make([]string, 0, len(res.Closed))
		for _, e := range res.Closed {
			closedIDs = append(closedIDs, e.MarketID)
			c.metrics.CloseEvents.WithLabelValues(e.Reason).Inc()
		}
		if err := c.stores.Positions.RemoveCurrent(ctx, wallet, closedIDs); err != nil {
			return nil, fmt.Errorf("remove closed positions for %s: %w", wallet, err)
		}
		stats.Closed = len(res.Closed)
	}

	if len(curr) > 0 {
		if err := c.stores.Positions.UpsertCurrent(ctx, wallet, curr); err != nil {
			return nil, fmt.Errorf("upsert positions for %s: %w", wallet, err)
		}
	}

	if err := c.stores.PollState.Update(ctx, wallet, maxSeen, nowMs); err != nil {
		return nil, fmt.Errorf("advance poll state for %s: %w", wallet, err)
	}
	return stats, nil
}

func (c *Cycle) watermark(ctx context.Context, wallet string) (int64, error) {
	st, err := c.stores.PollState.Get(ctx, wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read poll state for %s: %w", wallet, err)
	}
	return st.LastTradeTimeSeen, nil
}

// collectTrades walks trade pages newest-first, keeping rows strictly above
// the watermark. Older pages cannot contain new trades, so the walk stops at
// the first short page or the first page whose oldest row is at or below the
// watermark.
func (c *Cycle) collectTrades(ctx context.Context, wallet string, watermark int64) ([]*domain.Trade, int64, error) {
	var rows []*domain.Trade
	maxSeen := watermark

	for offset := 0; ; {
		page, err := c.venue.TradesPage(ctx, wallet, c.pageLimit, offset)
		if err != nil {
			return nil, 0, err
		}

		reachedWatermark := false
		for _, t := range page {
			if t.TradeTime > maxSeen {
				maxSeen = t.TradeTime
			}
			if t.TradeTime <= watermark {
				reachedWatermark = true
				continue
			}
			rows = append(rows, t)
		}

		if len(page) < c.pageLimit || reachedWatermark {
			break
		}
		offset += len(page)
	}
	return rows, maxSeen, nil
}
