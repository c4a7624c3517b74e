package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"polycopy/internal/domain"
	"polycopy/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{data: make(map[string]*domain.Trade)}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// UpsertTrades upserts rows keyed on trade_id; latest-wins on non-identity
// fields, trade_time guarded monotone. Returns the count of new rows.
func (s *TradeStore) UpsertTrades(_ context.Context, rows []*domain.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := time.Now().UnixMilli()
	inserted := 0

	for _, t := range rows {
		if t == nil || t.TradeID == "" || t.Wallet == "" || t.ConditionID == "" {
			return inserted, storage.ErrInvalidInput
		}

		cp := *t
		cp.SourceUpdatedAt = nowMs
		if prev, exists := s.data[t.TradeID]; exists {
			if prev.TradeTime > cp.TradeTime {
				cp.TradeTime = prev.TradeTime
			}
			cp.CreatedAt = prev.CreatedAt
		} else {
			cp.CreatedAt = nowMs
			inserted++
		}
		s.data[t.TradeID] = &cp
	}
	return inserted, nil
}

// GetByWallet returns a wallet's trades ordered by trade_time descending.
// Test helper mirroring the query surface of the SQL store.
func (s *TradeStore) GetByWallet(_ context.Context, wallet string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for _, t := range s.data {
		if t.Wallet == wallet {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeTime > out[j].TradeTime })
	return out
}

// Count returns the number of stored trades.
func (s *TradeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
