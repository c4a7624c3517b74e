package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// CloseEventStore is an in-memory implementation of storage.CloseEventStore.
type CloseEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PositionClose // keyed by (wallet, market_id, closed_at)
}

// NewCloseEventStore creates a new in-memory close-event store.
func NewCloseEventStore() *CloseEventStore {
	return &CloseEventStore{data: make(map[string]*domain.PositionClose)}
}

var _ storage.CloseEventStore = (*CloseEventStore)(nil)

func closeKey(wallet, marketID string, closedAt int64) string {
	return fmt.Sprintf("%s|%s|%d", wallet, marketID, closedAt)
}

// EmitClosed inserts events idempotently; duplicates are ignored.
func (s *CloseEventStore) EmitClosed(_ context.Context, events []*domain.PositionClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil || e.Wallet == "" || e.MarketID == "" {
			return storage.ErrInvalidInput
		}
		key := closeKey(e.Wallet, e.MarketID, e.ClosedAt)
		if _, exists := s.data[key]; exists {
			continue
		}
		cp := *e
		s.data[key] = &cp
	}
	return nil
}

// GetByWallet returns a wallet's close events, newest first.
func (s *CloseEventStore) GetByWallet(_ context.Context, wallet string) []*domain.PositionClose {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PositionClose
	for _, e := range s.data {
		if e.Wallet == wallet {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClosedAt != out[j].ClosedAt {
			return out[i].ClosedAt > out[j].ClosedAt
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// Count returns the number of stored events.
func (s *CloseEventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
