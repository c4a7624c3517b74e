package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// GetCurrent retrieves the stored open-position snapshot for a wallet.
func (s *PositionStore) GetCurrent(ctx context.Context, wallet string) ([]*domain.Position, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT wallet, market_id, size, redeemable, last_seen_at, raw
		FROM positions_current
		WHERE wallet = $1
		ORDER BY market_id
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("get current positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// UpsertCurrent upserts snapshot rows on (wallet, market_id). Rows absent
// from the snapshot are left in place; RemoveCurrent handles disappearances.
func (s *PositionStore) UpsertCurrent(ctx context.Context, wallet string, positions []*domain.Position) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO positions_current (wallet, market_id, size, redeemable, last_seen_at, raw)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet, market_id) DO UPDATE SET
			size         = EXCLUDED.size,
			redeemable   = EXCLUDED.redeemable,
			last_seen_at = EXCLUDED.last_seen_at,
			raw          = EXCLUDED.raw
	`

	for _, p := range positions {
		if p == nil || p.MarketID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query, wallet, p.MarketID, p.Size, p.Redeemable, p.LastSeenAt, rawOrNil(p.Raw))
		if err != nil {
			return fmt.Errorf("upsert position %s/%s: %w", wallet, p.MarketID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RemoveCurrent deletes the given market ids for a wallet.
func (s *PositionStore) RemoveCurrent(ctx context.Context, wallet string, marketIDs []string) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(marketIDs) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM positions_current
		WHERE wallet = $1 AND market_id = ANY($2)
	`, wallet, marketIDs)
	if err != nil {
		return fmt.Errorf("remove positions: %w", err)
	}
	return nil
}

func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Wallet, &p.MarketID, &p.Size, &p.Redeemable, &p.LastSeenAt, &p.Raw); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}
