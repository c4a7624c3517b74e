// Package stream consumes the venue's live activity feed: it maintains the
// public trade feed, dispatches target-trader buys to the control plane, and
// matches order fills against the pending-orders cache.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"polycopy/internal/breaker"
	"polycopy/internal/control"
	"polycopy/internal/domain"
	"polycopy/internal/observability"
	"polycopy/internal/storage"
	"polycopy/internal/upstream"
)

const (
	// DefaultFlushInterval forces a feed buffer flush even when slow.
	DefaultFlushInterval = 2 * time.Second

	// DefaultSetsRefresh is the follow/target set refresh cadence.
	DefaultSetsRefresh = 5 * time.Minute

	// DefaultPendingRefresh is the pending-orders refresh cadence.
	DefaultPendingRefresh = 1 * time.Minute

	// DefaultInFlightCap bounds concurrent execution dispatches. At the cap
	// new dispatches are dropped, not queued; the pollers are the safety net.
	DefaultInFlightCap = 20
)

// ControlPlane is the downstream surface the ingester depends on.
type ControlPlane interface {
	TargetTraders(ctx context.Context) ([]string, bool, error)
	Followers(ctx context.Context) ([]string, error)
	PendingOrders(ctx context.Context) ([]string, error)
	SyncTrade(ctx context.Context, raw json.RawMessage) (int, error)
	Execute(ctx context.Context) error
	WSFill(ctx context.Context, orderID string) (*control.FillResult, error)
}

var _ ControlPlane = (*control.Client)(nil)

// IngesterOptions configures an Ingester.
type IngesterOptions struct {
	Events  <-chan upstream.ActivityEvent
	Control ControlPlane
	Trades  storage.TradeStore
	Breaker *breaker.Breaker
	Metrics *observability.Metrics
	Logger  *log.Logger

	BufferMax      int
	FlushInterval  time.Duration
	SetsRefresh    time.Duration
	PendingRefresh time.Duration
	InFlightCap    int
}

// Ingester is the single consumer of the activity feed.
type Ingester struct {
	events  <-chan upstream.ActivityEvent
	control ControlPlane
	trades  storage.TradeStore
	breaker *breaker.Breaker
	metrics *observability.Metrics
	logger  *log.Logger

	buffer  *TradeBuffer
	follows *WalletSet
	targets *WalletSet
	pending *PendingOrders

	flushInterval  time.Duration
	setsRefresh    time.Duration
	pendingRefresh time.Duration

	// inFlight is a semaphore; a failed non-blocking send means saturation.
	inFlight chan struct{}
}

// NewIngester creates an Ingester.
func NewIngester(opts IngesterOptions) *Ingester {
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	setsRefresh := opts.SetsRefresh
	if setsRefresh <= 0 {
		setsRefresh = DefaultSetsRefresh
	}
	pendingRefresh := opts.PendingRefresh
	if pendingRefresh <= 0 {
		pendingRefresh = DefaultPendingRefresh
	}
	inFlightCap := opts.InFlightCap
	if inFlightCap <= 0 {
		inFlightCap = DefaultInFlightCap
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}

	return &Ingester{
		events:         opts.Events,
		control:        opts.Control,
		trades:         opts.Trades,
		breaker:        opts.Breaker,
		metrics:        metrics,
		logger:         logger,
		buffer:         NewTradeBuffer(opts.BufferMax),
		follows:        NewWalletSet(),
		targets:        NewWalletSet(),
		pending:        NewPendingOrders(),
		flushInterval:  flushInterval,
		setsRefresh:    setsRefresh,
		pendingRefresh: pendingRefresh,
		inFlight:       make(chan struct{}, inFlightCap),
	}
}

// RefreshCaches reloads the follow set, target set, and pending orders. Also
// invoked by the WS client's reconnect hook.
func (i *Ingester) RefreshCaches(ctx context.Context) {
	if targets, _, err := i.control.TargetTraders(ctx); err != nil {
		i.logger.Printf("refresh target set: %v (keeping previous)", err)
	} else {
		i.targets.Replace(domain.NormalizeWallets(targets))
	}

	if follows, err := i.control.Followers(ctx); err != nil {
		i.logger.Printf("refresh follow set: %v (keeping previous)", err)
	} else {
		i.follows.Replace(domain.NormalizeWallets(follows))
	}

	i.refreshPending(ctx)
}

func (i *Ingester) refreshPending(ctx context.Context) {
	ids, err := i.control.PendingOrders(ctx)
	if err != nil {
		i.logger.Printf("refresh pending orders: %v (keeping previous)", err)
		return
	}
	i.pending.Replace(ids)
}

// OnReconnect counts the reconnect and refreshes all caches.
func (i *Ingester) OnReconnect(ctx context.Context) func() {
	return func() {
		i.metrics.WSReconnects.Inc()
		i.RefreshCaches(ctx)
	}
}

// Run consumes events until ctx is cancelled or the event channel closes.
// The buffer is flushed on the way out.
func (i *Ingester) Run(ctx context.Context) error {
	i.RefreshCaches(ctx)
	i.logger.Printf("stream ingester starting: %d follows, %d targets, %d pending",
		i.follows.Len(), i.targets.Len(), i.pending.Len())

	flushTicker := time.NewTicker(i.flushInterval)
	defer flushTicker.Stop()
	setsTicker := time.NewTicker(i.setsRefresh)
	defer setsTicker.Stop()
	pendingTicker := time.NewTicker(i.pendingRefresh)
	defer pendingTicker.Stop()

	defer i.flush(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-i.events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("activity feed channel closed")
			}
			i.handleEvent(ctx, ev)

		case <-flushTicker.C:
			i.flush(ctx)

		case <-setsTicker.C:
			if targets, _, err := i.control.TargetTraders(ctx); err == nil {
				i.targets.Replace(domain.NormalizeWallets(targets))
			}
			if follows, err := i.control.Followers(ctx); err == nil {
				i.follows.Replace(domain.NormalizeWallets(follows))
			}

		case <-pendingTicker.C:
			i.refreshPending(ctx)
		}
	}
}

func (i *Ingester) handleEvent(ctx context.Context, ev upstream.ActivityEvent) {
	i.metrics.StreamEvents.WithLabelValues(ev.Type).Inc()
	i.metrics.BreakerState.Set(float64(i.breaker.State()))

	switch ev.Type {
	case upstream.EventTypeTrades:
		i.handleTrade(ctx, ev.Payload)
	case upstream.EventTypeOrdersMatched:
		i.handleOrdersMatched(ctx, ev.Payload)
	}
}

func (i *Ingester) handleTrade(ctx context.Context, payload json.RawMessage) {
	trade, err := upstream.ParseTrade(payload)
	if err != nil {
		i.logger.Printf("malformed trade event dropped: %v", err)
		return
	}

	isFollow := i.follows.Contains(trade.Wallet)
	isTarget := i.targets.Contains(trade.Wallet)
	if !isFollow && !isTarget {
		return
	}

	if i.buffer.Add(trade) {
		i.flush(ctx)
	}
	i.metrics.BufferSize.Set(float64(i.buffer.Len()))

	if isTarget && trade.Side == domain.SideBuy {
		i.dispatch(ctx, trade)
	}
}

// dispatch forwards a target buy through the in-flight window and the
// breaker. Saturation drops the dispatch; the pollers pick the trade up
// within seconds.
func (i *Ingester) dispatch(ctx context.Context, trade *domain.Trade) {
	select {
	case i.inFlight <- struct{}{}:
	default:
		i.metrics.DispatchDropped.Inc()
		i.logger.Printf("dispatch window saturated, dropping %s for %s", trade.TradeID, trade.Wallet)
		return
	}
	i.metrics.InFlightSyncs.Set(float64(len(i.inFlight)))

	go func() {
		defer func() {
			<-i.inFlight
			i.metrics.InFlightSyncs.Set(float64(len(i.inFlight)))
		}()

		var inserted int
		err := i.breaker.Do(func() error {
			var syncErr error
			inserted, syncErr = i.control.SyncTrade(ctx, trade.Raw)
			return syncErr
		})
		if err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				i.logger.Printf("dispatch rejected, breaker open: %s", trade.TradeID)
			} else {
				i.logger.Printf("sync trade %s: %v", trade.TradeID, err)
			}
			return
		}

		if inserted > 0 {
			// Best effort; execution also runs on its own schedule.
			if err := i.control.Execute(ctx); err != nil {
				i.logger.Printf("execute trigger after %s: %v", trade.TradeID, err)
			}
		}
	}()
}

func (i *Ingester) handleOrdersMatched(ctx context.Context, payload json.RawMessage) {
	ev, err := upstream.ParseOrdersMatched(payload)
	if err != nil {
		i.logger.Printf("malformed orders_matched event dropped: %v", err)
		return
	}

	for _, id := range ev.OrderIDs() {
		if !i.pending.Match(id) {
			continue
		}
		i.metrics.FillsMatched.Inc()
		res, err := i.control.WSFill(ctx, id)
		if err != nil {
			i.logger.Printf("report fill %s: %v", id, err)
			continue
		}
		i.pending.Evict(id)
		if res.Updated {
			i.logger.Printf("order %s -> %s (fill %.2f)", id, res.NewStatus, res.FillRate)
		}
	}
}

func (i *Ingester) flush(ctx context.Context) {
	rows := i.buffer.Drain()
	i.metrics.BufferSize.Set(0)
	if len(rows) == 0 {
		return
	}

	inserted, err := i.trades.UpsertTrades(ctx, rows)
	if err != nil {
		i.logger.Printf("flush %d feed rows: %v", len(rows), err)
		return
	}
	i.metrics.BufferFlushes.Inc()
	i.metrics.TradesUpserted.Add(float64(inserted))
}
