package memory

import (
	"context"
	"sync"
	"time"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// PollStateStore is an in-memory implementation of storage.PollStateStore.
// The watermark guard matches the SQL store: cursors never move backwards.
type PollStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PollState
}

// NewPollStateStore creates a new in-memory poll-state store.
func NewPollStateStore() *PollStateStore {
	return &PollStateStore{data: make(map[string]*domain.PollState)}
}

var _ storage.PollStateStore = (*PollStateStore)(nil)

// Get retrieves a wallet's poll state.
func (s *PollStateStore) Get(_ context.Context, wallet string) (*domain.PollState, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// Update upserts the cursors; both guarded monotone.
func (s *PollStateStore) Update(_ context.Context, wallet string, lastTradeTime, lastPositionCheck int64) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data[wallet]
	if !ok {
		st = &domain.PollState{Wallet: wallet}
		s.data[wallet] = st
	}
	if lastTradeTime > st.LastTradeTimeSeen {
		st.LastTradeTimeSeen = lastTradeTime
	}
	if lastPositionCheck > st.LastPositionCheckAt {
		st.LastPositionCheckAt = lastPositionCheck
	}
	st.UpdatedAt = time.Now().UnixMilli()
	return nil
}
