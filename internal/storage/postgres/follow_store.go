package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"polycopy/internal/storage"
)

// FollowStore implements storage.FollowStore using PostgreSQL.
type FollowStore struct {
	pool *Pool
}

// NewFollowStore creates a new FollowStore.
func NewFollowStore(pool *Pool) *FollowStore {
	return &FollowStore{pool: pool}
}

var _ storage.FollowStore = (*FollowStore)(nil)

// ActiveFollows returns the distinct canonical wallets followed by at least
// one user. This is the hot set.
func (s *FollowStore) ActiveFollows(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT LOWER(wallet)
		FROM follows
		WHERE active
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("get active follows: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// ActiveTraders returns all tracked trader wallets.
func (s *FollowStore) ActiveTraders(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT LOWER(wallet)
		FROM traders
		WHERE active
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("get active traders: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
