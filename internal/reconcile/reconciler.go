// Package reconcile detects position lifecycle transitions by diffing the
// previous stored snapshot against a fresh one. It is a pure function of its
// inputs and the market oracle; replaying identical inputs yields an
// identical event set.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"polycopy/internal/domain"
)

const (
	// SizeTolerance is the absolute size delta (in shares) below which two
	// snapshots of the same position are considered unchanged.
	SizeTolerance = 0.01

	// oracleConcurrency bounds parallel market-status lookups per cycle.
	oracleConcurrency = 5
)

// Oracle answers whether a market has closed or resolved.
type Oracle interface {
	MarketStatus(ctx context.Context, marketID string) (domain.MarketStatus, error)
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Closed holds one event per disappeared position, ordered by market id.
	Closed []*domain.PositionClose
	// Changed holds surviving positions whose size moved beyond the
	// tolerance; no close event is emitted for these.
	Changed []*domain.Position
}

// Reconciler classifies position disappearances via the oracle.
type Reconciler struct {
	oracle    Oracle
	tolerance float64
}

// New creates a Reconciler. A zero tolerance falls back to SizeTolerance.
func New(oracle Oracle, tolerance float64) *Reconciler {
	if tolerance <= 0 {
		tolerance = SizeTolerance
	}
	return &Reconciler{oracle: oracle, tolerance: tolerance}
}

// Reconcile diffs prev against curr for a wallet. Disappeared positions are
// classified redeemed (last snapshot was redeemable), market_closed (oracle
// confirms closure) or manual_close (market open or unknown). An oracle
// failure aborts the pass; the next sweep observes the same disappearance.
func (r *Reconciler) Reconcile(ctx context.Context, wallet string, prev, curr []*domain.Position, now int64) (*Result, error) {
	currByMarket := make(map[string]*domain.Position, len(curr))
	for _, c := range curr {
		currByMarket[c.MarketID] = c
	}

	res := &Result{}
	var disappeared []*domain.Position

	for _, p := range prev {
		c, present := currByMarket[p.MarketID]
		if !present {
			disappeared = append(disappeared, p)
			continue
		}
		if math.Abs(p.Size-c.Size) > r.tolerance {
			res.Changed = append(res.Changed, c)
		}
	}

	if len(disappeared) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(oracleConcurrency)

	for _, p := range disappeared {
		g.Go(func() error {
			reason, err := r.classify(gctx, p)
			if err != nil {
				return fmt.Errorf("classify %s/%s: %w", wallet, p.MarketID, err)
			}
			mu.Lock()
			res.Closed = append(res.Closed, &domain.PositionClose{
				Wallet:   wallet,
				MarketID: p.MarketID,
				ClosedAt: now,
				Reason:   reason,
				Raw:      p.Raw,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(res.Closed, func(i, j int) bool { return res.Closed[i].MarketID < res.Closed[j].MarketID })
	return res, nil
}

func (r *Reconciler) classify(ctx context.Context, p *domain.Position) (string, error) {
	if p.Redeemable {
		return domain.CloseReasonRedeemed, nil
	}
	status, err := r.oracle.MarketStatus(ctx, p.MarketID)
	if err != nil {
		return "", err
	}
	if status == domain.MarketStatusClosed {
		return domain.CloseReasonMarketClosed, nil
	}
	// Open or unknown: a market we cannot confirm as closed is treated as an
	// explicit exit by the holder.
	return domain.CloseReasonManual, nil
}
