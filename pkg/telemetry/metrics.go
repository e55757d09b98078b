// Package telemetry exposes prometheus metrics for gate verdicts and
// verification runs. Metric writes sit on the gate's hot path, so they
// must never block or fail; prometheus counters satisfy both.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricGateVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assurance",
		Name:      "gate_verdicts_total",
		Help:      "Edit gate verdicts by path category and verdict.",
	}, []string{"category", "verdict"})

	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assurance",
		Name:      "runs_total",
		Help:      "Verification runs by overall exit classification.",
	}, []string{"profile", "classification"})

	metricChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assurance",
		Name:      "checks_total",
		Help:      "Individual check executions by classification.",
	}, []string{"classification"})

	metricRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "assurance",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of whole profile runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)

// CountVerdict records one gate decision.
func CountVerdict(category, verdict string) {
	metricGateVerdicts.WithLabelValues(category, verdict).Inc()
}

// CountRun records one completed profile run.
func CountRun(profileName, classification string, duration time.Duration) {
	metricRuns.WithLabelValues(profileName, classification).Inc()
	metricRunDuration.Observe(duration.Seconds())
}

// CountCheck records one check execution.
func CountCheck(classification string) {
	metricChecks.WithLabelValues(classification).Inc()
}
