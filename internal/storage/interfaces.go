package storage

import (
	"context"
	"time"

	"polycopy/internal/domain"
)

// MaxTradeBatch is the upper bound on rows per upsert statement batch.
// Larger inserts risk statement timeouts on the hosted store.
const MaxTradeBatch = 500

// TradeStore provides access to the trades table.
type TradeStore interface {
	// UpsertTrades batch-upserts rows keyed on trade_id; latest-wins on
	// non-identity columns, trade_time guarded monotone. Implementations
	// chunk internally at MaxTradeBatch. Returns the number of rows that
	// did not previously exist.
	UpsertTrades(ctx context.Context, rows []*domain.Trade) (int, error)
}

// PositionStore provides access to the positions_current table.
type PositionStore interface {
	// GetCurrent retrieves the stored open-position snapshot for a wallet.
	GetCurrent(ctx context.Context, wallet string) ([]*domain.Position, error)

	// UpsertCurrent upserts the snapshot rows on (wallet, market_id).
	// Positions absent from the snapshot are NOT deleted here; their
	// disappearance is the reconciler's input.
	UpsertCurrent(ctx context.Context, wallet string, positions []*domain.Position) error

	// RemoveCurrent deletes the given market ids for a wallet. Called only
	// with the reconciler's disappearance set.
	RemoveCurrent(ctx context.Context, wallet string, marketIDs []string) error
}

// CloseEventStore provides access to the positions_closed table.
type CloseEventStore interface {
	// EmitClosed inserts close events idempotently on
	// (wallet, market_id, closed_at); duplicates are ignored.
	EmitClosed(ctx context.Context, events []*domain.PositionClose) error
}

// PollStateStore provides access to the poll_state table.
type PollStateStore interface {
	// Get retrieves a wallet's poll state. Returns ErrNotFound when the
	// wallet has never been polled.
	Get(ctx context.Context, wallet string) (*domain.PollState, error)

	// Update upserts the cursors. The watermark never moves backwards:
	// stale writes are absorbed, not rejected.
	Update(ctx context.Context, wallet string, lastTradeTime, lastPositionCheck int64) error
}

// LockStore provides the named job lock used for cold-sweep mutual exclusion.
type LockStore interface {
	// Acquire CAS-writes locked_until to now+d when the lock is free or
	// expired. Returns false when another holder has it.
	Acquire(ctx context.Context, name, holder string, d time.Duration) (bool, error)

	// Extend pushes locked_until to now+d for the current holder.
	Extend(ctx context.Context, name, holder string, d time.Duration) error

	// Release frees the lock if held by holder.
	Release(ctx context.Context, name, holder string) error
}

// FollowStore reads the wallet sets that drive tiering and stream filtering.
type FollowStore interface {
	// ActiveFollows returns the distinct canonical wallets currently
	// followed by at least one user (the hot set).
	ActiveFollows(ctx context.Context) ([]string, error)

	// ActiveTraders returns all tracked trader wallets.
	ActiveTraders(ctx context.Context) ([]string, error)
}
