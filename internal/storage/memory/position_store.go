package memory

import (
	"context"
	"sort"
	"sync"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.Position // wallet -> market_id -> position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[string]map[string]*domain.Position)}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// GetCurrent retrieves the stored snapshot for a wallet ordered by market id.
func (s *PositionStore) GetCurrent(_ context.Context, wallet string) ([]*domain.Position, error) {
	if wallet == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Position
	for _, p := range s.data[wallet] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// UpsertCurrent upserts snapshot rows on (wallet, market_id).
func (s *PositionStore) UpsertCurrent(_ context.Context, wallet string, positions []*domain.Position) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.data[wallet]
	if m == nil {
		m = make(map[string]*domain.Position)
		s.data[wallet] = m
	}
	for _, p := range positions {
		if p == nil || p.MarketID == "" {
			return storage.ErrInvalidInput
		}
		cp := *p
		cp.Wallet = wallet
		m[p.MarketID] = &cp
	}
	return nil
}

// RemoveCurrent deletes the given market ids for a wallet.
func (s *PositionStore) RemoveCurrent(_ context.Context, wallet string, marketIDs []string) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range marketIDs {
		delete(s.data[wallet], id)
	}
	return nil
}
