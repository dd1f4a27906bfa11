// Package metrics exposes service-level Prometheus counters for the audit
// pipeline. Per-call audio measurements live in internal/audiometrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callaudit_jobs_started_total",
		Help: "Audit jobs accepted for processing",
	})

	jobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callaudit_jobs_completed_total",
		Help: "Audit jobs that produced a report",
	})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callaudit_jobs_failed_total",
		Help: "Audit jobs that failed, by pipeline stage",
	}, []string{"stage"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callaudit_stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})
)

func JobStarted() {
	jobsStarted.Inc()
}

func JobCompleted() {
	jobsCompleted.Inc()
}

func JobFailed(stage string) {
	jobsFailed.WithLabelValues(stage).Inc()
}

func ObserveStage(stage string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
}
