package memory

import (
	"context"
	"sync"
	"time"

	"polycopy/internal/storage"
)

// LockStore is an in-memory implementation of storage.LockStore with an
// injectable clock, mirroring the CAS semantics of acquire_job_lock.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]lockRow

	// Now is the clock; tests override it to drive expiry.
	Now func() time.Time
}

type lockRow struct {
	holder      string
	lockedUntil time.Time
}

// NewLockStore creates a new in-memory lock store.
func NewLockStore() *LockStore {
	return &LockStore{
		locks: make(map[string]lockRow),
		Now:   time.Now,
	}
}

var _ storage.LockStore = (*LockStore)(nil)

// Acquire takes the lock when free or expired.
func (s *LockStore) Acquire(_ context.Context, name, holder string, d time.Duration) (bool, error) {
	if name == "" || holder == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if row, exists := s.locks[name]; exists && row.lockedUntil.After(now) {
		return false, nil
	}
	s.locks[name] = lockRow{holder: holder, lockedUntil: now.Add(d)}
	return true, nil
}

// Extend pushes locked_until forward for the current holder.
func (s *LockStore) Extend(_ context.Context, name, holder string, d time.Duration) error {
	if name == "" || holder == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	row, exists := s.locks[name]
	if !exists || row.holder != holder || row.lockedUntil.Before(now) {
		return storage.ErrLockNotHeld
	}
	row.lockedUntil = now.Add(d)
	s.locks[name] = row
	return nil
}

// Release frees the lock if held by holder.
func (s *LockStore) Release(_ context.Context, name, holder string) error {
	if name == "" || holder == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, exists := s.locks[name]; exists && row.holder == holder {
		delete(s.locks, name)
	}
	return nil
}
