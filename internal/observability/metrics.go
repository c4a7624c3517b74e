// Package observability provides Prometheus metrics and the memory watchdog
// shared by the pipeline workers.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Poller metrics
	PollCycles     *prometheus.CounterVec // tier
	PollErrors     *prometheus.CounterVec // tier
	TradesUpserted prometheus.Counter
	CloseEvents    *prometheus.CounterVec // reason
	SweepDuration  *prometheus.HistogramVec

	// Stream metrics
	StreamEvents    *prometheus.CounterVec // type
	BufferSize      prometheus.Gauge
	BufferFlushes   prometheus.Counter
	DispatchDropped prometheus.Counter
	InFlightSyncs   prometheus.Gauge
	FillsMatched    prometheus.Counter
	WSReconnects    prometheus.Counter
	BreakerState    prometheus.Gauge

	// Health metrics
	HeapBytes          prometheus.Gauge
	HeapCommittedRatio prometheus.Gauge
}

// NewMetrics registers all pipeline metrics on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "polycopy"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		PollCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Completed poll cycles by tier",
		}, []string{"tier"}),
		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_errors_total",
			Help:      "Failed poll cycles by tier",
		}, []string{"tier"}),
		TradesUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "trades_upserted_total",
			Help:      "New trade rows written by the pollers",
		}),
		CloseEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "close_events_total",
			Help:      "Position close events emitted by reason",
		}, []string{"reason"}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of full tier sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"tier"}),

		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Activity feed events received by type",
		}, []string{"type"}),
		BufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "buffer_size",
			Help:      "Feed rows currently buffered",
		}),
		BufferFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "buffer_flushes_total",
			Help:      "Feed buffer flushes",
		}),
		DispatchDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dispatch_dropped_total",
			Help:      "Execution dispatches dropped at the in-flight cap",
		}),
		InFlightSyncs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "in_flight_sync_calls",
			Help:      "Execution dispatches currently in flight",
		}),
		FillsMatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "fills_matched_total",
			Help:      "orders_matched ids matched against the pending cache",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ws_reconnects_total",
			Help:      "Activity feed reconnections",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "breaker_state",
			Help:      "Dispatch circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),

		HeapBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "heap_bytes",
			Help:      "Heap in use",
		}),
		HeapCommittedRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "heap_committed_ratio",
			Help:      "Heap in use over heap committed",
		}),
	}
}

// Handler serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthHandler is a trivial liveness endpoint.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
