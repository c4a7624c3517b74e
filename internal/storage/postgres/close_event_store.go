package postgres

import (
	"context"
	"fmt"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// CloseEventStore implements storage.CloseEventStore using PostgreSQL.
type CloseEventStore struct {
	pool *Pool
}

// NewCloseEventStore creates a new CloseEventStore.
func NewCloseEventStore(pool *Pool) *CloseEventStore {
	return &CloseEventStore{pool: pool}
}

var _ storage.CloseEventStore = (*CloseEventStore)(nil)

// EmitClosed inserts close events, ignoring duplicates on the
// (wallet, market_id, closed_at) identity.
func (s *CloseEventStore) EmitClosed(ctx context.Context, events []*domain.PositionClose) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO positions_closed (wallet, market_id, closed_at, closed_reason, raw)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet, market_id, closed_at) DO NOTHING
	`

	for _, e := range events {
		if e == nil || e.Wallet == "" || e.MarketID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query, e.Wallet, e.MarketID, e.ClosedAt, e.Reason, rawOrNil(e.Raw))
		if err != nil {
			return fmt.Errorf("emit close event %s/%s: %w", e.Wallet, e.MarketID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetClosed retrieves close events for a wallet ordered by closed_at DESC.
// Used by tests and ad-hoc inspection.
func (s *CloseEventStore) GetClosed(ctx context.Context, wallet string) ([]*domain.PositionClose, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, market_id, closed_at, closed_reason, raw
		FROM positions_closed
		WHERE wallet = $1
		ORDER BY closed_at DESC, market_id
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("get close events: %w", err)
	}
	defer rows.Close()

	var events []*domain.PositionClose
	for rows.Next() {
		var e domain.PositionClose
		if err := rows.Scan(&e.Wallet, &e.MarketID, &e.ClosedAt, &e.Reason, &e.Raw); err != nil {
			return nil, fmt.Errorf("scan close event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
