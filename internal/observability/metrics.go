// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the detector.
type Metrics struct {
	// Ingestion metrics
	EventsFolded   *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	GapsRecorded   prometheus.Counter
	FeedMessages   prometheus.Counter
	FeedReconnects prometheus.Counter

	// Scheduler metrics
	TicksTotal   prometheus.Counter
	TickDuration prometheus.Histogram
	ActivePools  prometheus.Gauge
	PoolsEvicted prometheus.Counter

	// Detection metrics
	StateTransitions  *prometheus.CounterVec
	PrimitivePasses   *prometheus.CounterVec
	SignalsEmitted    prometheus.Counter
	SignalsSuppressed prometheus.Counter

	// Storage metrics
	WriteErrors  *prometheus.CounterVec
	WriteRetries prometheus.Counter

	// Health metrics
	LastTickTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "coil_detector"
	}

	return &Metrics{
		EventsFolded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_folded_total",
			Help:      "Total number of events folded into pool state by type",
		}, []string{"event_type"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped beyond the reorder bound",
		}),
		GapsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "gaps_recorded_total",
			Help:      "Total number of gap records persisted",
		}),
		FeedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_messages_total",
			Help:      "Total number of feed messages received",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_reconnects_total",
			Help:      "Total number of event feed reconnects",
		}),

		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of completed detector ticks",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Full-tick duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ActivePools: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_pools",
			Help:      "Number of pools with live window state",
		}),
		PoolsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pools_evicted_total",
			Help:      "Total number of idle pools evicted",
		}),

		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions by edge",
		}, []string{"from", "to"}),
		PrimitivePasses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "primitive_passes_total",
			Help:      "Total number of passing primitive evaluations by primitive",
		}, []string{"primitive"}),
		SignalsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "signals_emitted_total",
			Help:      "Total number of actionable ENTER signals emitted",
		}),
		SignalsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "signals_suppressed_total",
			Help:      "Total number of ENTER pulses suppressed by cooldown",
		}),

		WriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_errors_total",
			Help:      "Total number of storage write errors by store",
		}, []string{"store"}),
		WriteRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_retries_total",
			Help:      "Total number of storage write retries",
		}),

		LastTickTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp of the last completed tick",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransition increments the transition counter for an edge.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordWriteError increments the write error counter for a store.
func (m *Metrics) RecordWriteError(store string) {
	m.WriteErrors.WithLabelValues(store).Inc()
}
