// Package breaker implements a three-state circuit breaker guarding the
// downstream control-plane dispatch.
package breaker

import (
	"errors"
	"sync"
	"time"

	"polycopy/internal/retry"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Defaults per the dispatch path.
const (
	DefaultThreshold = 5
	DefaultOpenFor   = 60 * time.Second
)

// ErrOpen is returned when the breaker rejects a call without dispatching.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips open after N consecutive failures, rejects calls for the open
// duration, then allows a single half-open probe. Failure accounting: HTTP
// status >= 500, status 408, and timeouts count as failures; any other 4xx is
// a success for breaker purposes even though the call itself errored.
type Breaker struct {
	threshold int
	openFor   time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New creates a Breaker. Zero threshold/openFor select the defaults.
func New(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if openFor <= 0 {
		openFor = DefaultOpenFor
	}
	return &Breaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

// State returns the current state, accounting for open-duration expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.openFor {
		return StateHalfOpen
	}
	return b.state
}

// Do dispatches fn through the breaker. When open, fn is not called and
// ErrOpen is returned. fn's error is classified for breaker accounting and
// returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openFor {
			return ErrOpen
		}
		// Open duration elapsed: admit a single probe.
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	failed := isFailure(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
		if failed {
			b.state = StateOpen
			b.openedAt = b.now()
		} else {
			b.state = StateClosed
			b.failures = 0
		}
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// isFailure classifies an outcome for breaker accounting.
func isFailure(err error) bool {
	if err == nil {
		return false
	}
	var he *retry.HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == retry.StatusTimeout
	}
	// Network errors and timeouts without a status count as failures.
	return true
}
