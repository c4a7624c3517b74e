package postgres

import (
	"context"
	"fmt"
	"time"

	"polycopy/internal/storage"
)

// LockStore implements storage.LockStore using the acquire_job_lock SQL
// function (CAS on job_locks.locked_until).
type LockStore struct {
	pool *Pool
}

// NewLockStore creates a new LockStore.
func NewLockStore(pool *Pool) *LockStore {
	return &LockStore{pool: pool}
}

var _ storage.LockStore = (*LockStore)(nil)

// Acquire takes the lock when it is free or expired.
func (s *LockStore) Acquire(ctx context.Context, name, holder string, d time.Duration) (bool, error) {
	if name == "" || holder == "" {
		return false, storage.ErrInvalidInput
	}

	until := time.Now().UTC().Add(d)
	row := s.pool.QueryRow(ctx, `SELECT acquire_job_lock($1, $2, $3)`, name, holder, until)

	var acquired bool
	if err := row.Scan(&acquired); err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// Extend pushes locked_until forward for the current holder.
func (s *LockStore) Extend(ctx context.Context, name, holder string, d time.Duration) error {
	if name == "" || holder == "" {
		return storage.ErrInvalidInput
	}

	until := time.Now().UTC().Add(d)
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_locks
		SET locked_until = $3
		WHERE name = $1 AND holder = $2 AND locked_until >= NOW()
	`, name, holder, until)
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrLockNotHeld
	}
	return nil
}

// Release frees the lock if held by holder. Releasing a lock that expired or
// was taken over is not an error.
func (s *LockStore) Release(ctx context.Context, name, holder string) error {
	if name == "" || holder == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE job_locks
		SET locked_until = NULL, holder = NULL
		WHERE name = $1 AND holder = $2
	`, name, holder)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
