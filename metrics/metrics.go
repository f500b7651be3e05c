// Package metrics exposes Prometheus counters for cleaning runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoclean_runs_total",
		Help: "Total pipeline runs by outcome",
	}, []string{"outcome"})
	FeaturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoclean_features_total",
		Help: "Total features ingested",
	})
	InvalidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoclean_invalid_total",
		Help: "Total geometries invalid on first validation",
	})
	UnrepairableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoclean_unrepairable_total",
		Help: "Total geometries excluded after a failed repair",
	})
	DuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoclean_duplicates_total",
		Help: "Total kept geometries flagged as duplicates",
	})
	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoclean_run_duration_seconds",
		Help:    "Pipeline run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	PublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoclean_publish_failures_total",
		Help: "Total summary events that could not be published",
	})
)

// ObserveRun records the counts of a completed run.
func ObserveRun(features, invalid, unrepairable, duplicates int, elapsed time.Duration) {
	RunsTotal.WithLabelValues("reported").Inc()
	FeaturesTotal.Add(float64(features))
	InvalidTotal.Add(float64(invalid))
	UnrepairableTotal.Add(float64(unrepairable))
	DuplicatesTotal.Add(float64(duplicates))
	RunDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveAbort records a run that stopped on an error.
func ObserveAbort(kind string) {
	RunsTotal.WithLabelValues(kind).Inc()
}
