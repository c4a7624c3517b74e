// Package retry wraps upstream operations with the transient-failure policy:
// retry only on {408, 429, 500, 502, 503, 504}, up to 3 attempts, with
// exponential backoff plus additive jitter. Everything else propagates
// immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	maxAttempts = 3
	baseDelay   = 1 * time.Second
	maxJitter   = 500 * time.Millisecond

	// StatusTimeout is the synthetic status assigned to request deadlines so
	// they flow through the same retryable classification as upstream 408s.
	StatusTimeout = 408
)

// HTTPError carries an upstream HTTP status for retry and breaker accounting.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream status %d from %s: %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("upstream status %d from %s", e.Status, e.URL)
}

// Retryable reports whether the status is transient.
func (e *HTTPError) Retryable() bool {
	switch e.Status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Timeout returns the synthetic 408 error used when a request deadline fires.
func Timeout(url string) *HTTPError {
	return &HTTPError{Status: StatusTimeout, URL: url, Body: "request deadline exceeded"}
}

// IsTimeout reports whether err is (or wraps) a synthetic 408.
func IsTimeout(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == StatusTimeout
}

// IsRetryable classifies an error under the retry policy. Network-level
// timeouts and cancelled deadlines count as retryable (synthetic 408 class);
// other errors only when they carry a retryable HTTP status.
func IsRetryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// policy implements backoff.BackOff with delay = base*2^(attempt-1) + U(0, 500ms).
type policy struct {
	attempt int
	rand    *rand.Rand
}

func (p *policy) NextBackOff() time.Duration {
	d := baseDelay << p.attempt
	p.attempt++
	return d + time.Duration(p.rand.Int63n(int64(maxJitter)))
}

func (p *policy) Reset() { p.attempt = 0 }

// Do runs op, retrying transient failures per the policy. The final error is
// the last attempt's, unwrapped from backoff's bookkeeping.
func Do(ctx context.Context, op func() error) error {
	p := &policy{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	bo := backoff.WithContext(backoff.WithMaxRetries(p, maxAttempts-1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
