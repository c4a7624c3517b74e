package observability

import (
	"context"
	"log"
	"runtime"
	"time"
)

const (
	// WatchdogInterval is the heap sampling cadence.
	WatchdogInterval = 60 * time.Second

	// WatchdogWarnRatio is the heap-in-use over heap-committed ratio above
	// which the watchdog warns. Operational signal only.
	WatchdogWarnRatio = 0.85
)

// Watchdog periodically samples heap usage, exports it, and warns when the
// in-use heap approaches the committed heap.
type Watchdog struct {
	metrics  *Metrics
	logger   *log.Logger
	interval time.Duration
	ratio    float64

	readMem func(*runtime.MemStats)
}

// NewWatchdog creates a Watchdog with the default cadence and threshold.
func NewWatchdog(metrics *Metrics, logger *log.Logger) *Watchdog {
	if logger == nil {
		logger = log.Default()
	}
	return &Watchdog{
		metrics:  metrics,
		logger:   logger,
		interval: WatchdogInterval,
		ratio:    WatchdogWarnRatio,
		readMem:  runtime.ReadMemStats,
	}
}

// Run samples until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *Watchdog) sample() {
	var ms runtime.MemStats
	w.readMem(&ms)

	inUse := float64(ms.HeapInuse)
	committed := float64(ms.HeapSys)

	w.metrics.HeapBytes.Set(inUse)
	if committed > 0 {
		ratio := inUse / committed
		w.metrics.HeapCommittedRatio.Set(ratio)
		if ratio > w.ratio {
			w.logger.Printf("memory watchdog: heap %.0f MiB is %.0f%% of committed %.0f MiB",
				inUse/(1<<20), ratio*100, committed/(1<<20))
		}
	}
}
