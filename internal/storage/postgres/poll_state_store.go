package postgres

import (
	"context"
	"fmt"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// PollStateStore implements storage.PollStateStore using PostgreSQL.
// The watermark guard lives in SQL: GREATEST() on the conflict update means
// overlapping cycles can never move last_trade_time_seen backwards, no matter
// how their writes interleave.
type PollStateStore struct {
	pool *Pool
}

// NewPollStateStore creates a new PollStateStore.
func NewPollStateStore(pool *Pool) *PollStateStore {
	return &PollStateStore{pool: pool}
}

var _ storage.PollStateStore = (*PollStateStore)(nil)

// Get retrieves a wallet's poll state.
func (s *PollStateStore) Get(ctx context.Context, wallet string) (*domain.PollState, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT wallet, last_trade_time_seen, last_position_check_at,
		       (EXTRACT(EPOCH FROM updated_at) * 1000)::BIGINT
		FROM poll_state
		WHERE wallet = $1
	`, wallet)

	var st domain.PollState
	if err := row.Scan(&st.Wallet, &st.LastTradeTimeSeen, &st.LastPositionCheckAt, &st.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get poll state: %w", err)
	}
	return &st, nil
}

// Update upserts the cursors; both are guarded monotone.
func (s *PollStateStore) Update(ctx context.Context, wallet string, lastTradeTime, lastPositionCheck int64) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO poll_state (wallet, last_trade_time_seen, last_position_check_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			last_trade_time_seen   = GREATEST(poll_state.last_trade_time_seen, EXCLUDED.last_trade_time_seen),
			last_position_check_at = GREATEST(poll_state.last_position_check_at, EXCLUDED.last_position_check_at),
			updated_at             = NOW()
	`, wallet, lastTradeTime, lastPositionCheck)
	if err != nil {
		return fmt.Errorf("update poll state: %w", err)
	}
	return nil
}
