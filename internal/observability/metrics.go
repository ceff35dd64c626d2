// Package observability holds the Prometheus instrumentation for the
// ingestion pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	EventsFetched        *prometheus.CounterVec // labels: source
	FetchErrors          *prometheus.CounterVec // labels: source
	DuplicatesSuppressed prometheus.Counter
	EventsPersisted      prometheus.Counter
	PersistErrors        prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationErrors   prometheus.Counter

	TickDuration prometheus.Histogram
	WindowSize   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EventsFetched,
		m.FetchErrors,
		m.DuplicatesSuppressed,
		m.EventsPersisted,
		m.PersistErrors,
		m.NotificationsSent,
		m.NotificationErrors,
		m.TickDuration,
		m.WindowSize,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "events_fetched_total",
			Help:      "Normalized events returned by each source feed.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "fetch_errors_total",
			Help:      "Failed fetch attempts per source feed.",
		}, []string{"source"}),
		DuplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "duplicates_suppressed_total",
			Help:      "Events dropped by the in-memory dedup window.",
		}),
		EventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "events_persisted_total",
			Help:      "First-time writes to the durable store.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "persist_errors_total",
			Help:      "Failed store writes.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "notifications_sent_total",
			Help:      "Alerts handed off to the delivery collaborator.",
		}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakewatch",
			Name:      "notification_errors_total",
			Help:      "Failed alert hand-offs.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quakewatch",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a complete fetch-dedup-persist-notify tick.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quakewatch",
			Name:      "dedup_window_entries",
			Help:      "Entries currently held in the dedup window.",
		}),
	}
}
