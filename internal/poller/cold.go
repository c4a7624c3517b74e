package poller

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"polycopy/internal/storage"
)

const (
	// ColdLockName is the shared named lock serializing cold sweeps across
	// replicas.
	ColdLockName = "cold_poll"

	// ColdLockTTL is the lock lease; generous enough to outlive one sweep so
	// a crashed replica's lock expires rather than wedging the tier.
	ColdLockTTL = 65 * time.Minute

	// ColdInterval is the base spacing between cold sweeps; a uniform jitter
	// of up to ColdJitter is added so replicas do not thunder together.
	ColdInterval = 1 * time.Hour
	ColdJitter   = 60 * time.Second

	// coldHeartbeat is the background lease-extension cadence.
	coldHeartbeat = 30 * time.Minute

	// coldExtendEvery is the wallet stride between explicit lease extensions
	// inside a sweep.
	coldExtendEvery = 100
)

const tierCold = "cold"

// ColdOptions configures the cold poller.
type ColdOptions struct {
	Cycle    *Cycle
	Interval time.Duration
	Jitter   time.Duration
	LockTTL  time.Duration
	Logger   *log.Logger
}

// Cold sweeps every tracked trader outside the follow set, serialized across
// replicas by the named lock. Losing the lock mid-sweep abandons the sweep.
type Cold struct {
	cycle    *Cycle
	interval time.Duration
	jitter   time.Duration
	lockTTL  time.Duration
	holder   string
	logger   *log.Logger
}

// NewCold creates a cold poller with a unique holder identity.
func NewCold(opts ColdOptions) *Cold {
	interval := opts.Interval
	if interval <= 0 {
		interval = ColdInterval
	}
	jitter := opts.Jitter
	if jitter < 0 {
		jitter = ColdJitter
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = ColdLockTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Cold{
		cycle:    opts.Cycle,
		interval: interval,
		jitter:   jitter,
		lockTTL:  lockTTL,
		holder:   uuid.NewString(),
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled. Failing to take the lock skips the
// sweep; another replica is active and that is the normal case.
func (c *Cold) Run(ctx context.Context) error {
	c.logger.Printf("cold poller starting, holder=%s interval=%s", c.holder, c.interval)

	for {
		ok, err := c.cycle.stores.Locks.Acquire(ctx, ColdLockName, c.holder, c.lockTTL)
		if err != nil {
			c.logger.Printf("acquire %s: %v", ColdLockName, err)
		} else if !ok {
			c.logger.Printf("lock %s held elsewhere, skipping sweep", ColdLockName)
		} else {
			c.sweep(ctx)
			c.release()
		}

		if ctx.Err() != nil {
			return nil
		}
		pause := c.interval
		if c.jitter > 0 {
			pause += time.Duration(rand.Int63n(int64(c.jitter)))
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return nil
		}
	}
}

func (c *Cold) sweep(ctx context.Context) {
	wallets, err := c.coldSet(ctx)
	if err != nil {
		c.logger.Printf("derive cold set: %v", err)
		return
	}
	c.logger.Printf("cold sweep starting, %d wallets", len(wallets))

	sweepStart := time.Now()
	defer func() {
		c.cycle.metrics.SweepDuration.WithLabelValues(tierCold).Observe(time.Since(sweepStart).Seconds())
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeat(hbCtx)

	for i, wallet := range wallets {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && i%coldExtendEvery == 0 {
			if err := c.extend(ctx); err != nil {
				c.logger.Printf("lost lock %s mid-sweep, abandoning: %v", ColdLockName, err)
				return
			}
		}
		if _, err := c.cycle.Run(ctx, wallet); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.cycle.metrics.PollErrors.WithLabelValues(tierCold).Inc()
			c.logger.Printf("cold cycle failed for %s: %v", wallet, err)
			continue
		}
		c.cycle.metrics.PollCycles.WithLabelValues(tierCold).Inc()
	}
	c.logger.Printf("cold sweep done, %d wallets", len(wallets))
}

// coldSet is every active trader not already covered by the hot tier.
func (c *Cold) coldSet(ctx context.Context) ([]string, error) {
	traders, err := c.cycle.stores.Follows.ActiveTraders(ctx)
	if err != nil {
		return nil, err
	}
	follows, err := c.cycle.stores.Follows.ActiveFollows(ctx)
	if err != nil {
		return nil, err
	}

	hot := make(map[string]struct{}, len(follows))
	for _, w := range follows {
		hot[w] = struct{}{}
	}

	var cold []string
	for _, w := range traders {
		if _, covered := hot[w]; !covered {
			cold = append(cold, w)
		}
	}
	return cold, nil
}

func (c *Cold) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(coldHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.extend(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Printf("heartbeat extend %s: %v", ColdLockName, err)
			}
		}
	}
}

func (c *Cold) extend(ctx context.Context) error {
	return c.cycle.stores.Locks.Extend(ctx, ColdLockName, c.holder, c.lockTTL)
}

// release runs on its own deadline so shutdown still frees the lock.
func (c *Cold) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cycle.stores.Locks.Release(ctx, ColdLockName, c.holder); err != nil &&
		!errors.Is(err, storage.ErrLockNotHeld) {
		c.logger.Printf("release %s: %v", ColdLockName, err)
	}
}
