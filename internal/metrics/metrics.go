// Package metrics defines the Prometheus collectors used across the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus collectors for the collector service.
type Metrics struct {
	RunsTotal              *prometheus.CounterVec
	RunDuration            prometheus.Histogram
	ArticlesProcessedTotal prometheus.Counter
	ArticlesFailedTotal    prometheus.Counter
	ExtractorFailuresTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production wiring.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_runs_total",
				Help: "Completed ingestion runs by final status.",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingestion_run_seconds",
				Help:    "Wall-clock duration of ingestion runs in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		ArticlesProcessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "articles_processed_total",
				Help: "Articles that reached PROCESSED.",
			},
		),
		ArticlesFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "articles_failed_total",
				Help: "Articles marked FAILED during processing.",
			},
		),
		ExtractorFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_fetch_failures_total",
				Help: "Content extraction failures by reason (fetch, rate_limited, too_short).",
			},
			[]string{"reason"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RunsTotal,
			m.RunDuration,
			m.ArticlesProcessedTotal,
			m.ArticlesFailedTotal,
			m.ExtractorFailuresTotal,
		)
	}

	return m
}
