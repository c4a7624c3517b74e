package memory

import (
	"context"
	"sort"
	"sync"

	"polycopy/internal/storage"
)

// FollowStore is an in-memory implementation of storage.FollowStore.
type FollowStore struct {
	mu      sync.RWMutex
	follows map[string]struct{}
	traders map[string]struct{}
}

// NewFollowStore creates a new in-memory follow store.
func NewFollowStore() *FollowStore {
	return &FollowStore{
		follows: make(map[string]struct{}),
		traders: make(map[string]struct{}),
	}
}

var _ storage.FollowStore = (*FollowStore)(nil)

// SetFollows replaces the active-follow set.
func (s *FollowStore) SetFollows(wallets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows = make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		s.follows[w] = struct{}{}
	}
}

// SetTraders replaces the tracked-trader set.
func (s *FollowStore) SetTraders(wallets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traders = make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		s.traders[w] = struct{}{}
	}
}

// ActiveFollows returns the hot set, sorted.
func (s *FollowStore) ActiveFollows(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.follows), nil
}

// ActiveTraders returns all tracked wallets, sorted.
func (s *FollowStore) ActiveTraders(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.traders), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
