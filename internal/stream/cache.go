package stream

import "sync"

// WalletSet is a read-mostly set of normalized wallets. Replace swaps the
// whole set; lookups take a read lock only.
type WalletSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewWalletSet creates an empty set.
func NewWalletSet() *WalletSet {
	return &WalletSet{set: make(map[string]struct{})}
}

// Replace swaps in a new membership.
func (s *WalletSet) Replace(wallets []string) {
	next := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		next[w] = struct{}{}
	}
	s.mu.Lock()
	s.set = next
	s.mu.Unlock()
}

// Contains reports membership.
func (s *WalletSet) Contains(wallet string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[wallet]
	return ok
}

// Len returns the current size.
func (s *WalletSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.set)
}

// PendingOrders tracks outbound order ids awaiting fills.
type PendingOrders struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewPendingOrders creates an empty cache.
func NewPendingOrders() *PendingOrders {
	return &PendingOrders{ids: make(map[string]struct{})}
}

// Replace swaps in a fresh id set from the control plane.
func (p *PendingOrders) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	p.mu.Lock()
	p.ids = next
	p.mu.Unlock()
}

// Match reports whether id is pending.
func (p *PendingOrders) Match(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ids[id]
	return ok
}

// Evict removes id after its fill has been reported.
func (p *PendingOrders) Evict(id string) {
	p.mu.Lock()
	delete(p.ids, id)
	p.mu.Unlock()
}

// Len returns the number of pending ids.
func (p *PendingOrders) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}
