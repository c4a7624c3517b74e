package stream

import (
	"sync"

	"polycopy/internal/domain"
)

// DefaultBufferMax is the row count that forces a feed buffer flush.
const DefaultBufferMax = 50

// TradeBuffer accumulates feed rows between flushes.
type TradeBuffer struct {
	mu   sync.Mutex
	rows []*domain.Trade
	max  int
}

// NewTradeBuffer creates a buffer that reports full at max rows.
func NewTradeBuffer(max int) *TradeBuffer {
	if max <= 0 {
		max = DefaultBufferMax
	}
	return &TradeBuffer{max: max}
}

// Add appends a row and reports whether the buffer should be flushed.
func (b *TradeBuffer) Add(t *domain.Trade) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, t)
	return len(b.rows) >= b.max
}

// Drain returns the buffered rows and resets the buffer.
func (b *TradeBuffer) Drain() []*domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.rows
	b.rows = nil
	return rows
}

// Len returns the number of buffered rows.
func (b *TradeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}
