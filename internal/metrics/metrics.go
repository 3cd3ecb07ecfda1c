// Package metrics exposes Prometheus counters and histograms for triage runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesProcessed counts messages by outcome: labeled, label_failed, fetch_failed.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_messages_processed_total",
			Help: "Total number of messages handled by triage runs",
		},
		[]string{"status"},
	)

	// CategoriesAssigned counts classification results by category and reason.
	CategoriesAssigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_categories_assigned_total",
			Help: "Total number of categories assigned",
		},
		[]string{"category", "reason"},
	)

	// ModelCallLatency tracks model invocation latency in milliseconds.
	ModelCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailtriage_model_call_latency_ms",
			Help:    "Model invocation latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~50s
		},
		[]string{"model", "status"},
	)

	// RunDuration tracks the wall time of a whole triage run.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailtriage_run_duration_seconds",
			Help:    "Triage run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// RunErrors counts runs that aborted before processing messages.
	RunErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailtriage_run_errors_total",
			Help: "Total number of triage runs that failed to start or list messages",
		},
	)
)

// IncrementProcessed records one message outcome.
func IncrementProcessed(status string) {
	MessagesProcessed.WithLabelValues(status).Inc()
}

// IncrementCategory records one classification.
func IncrementCategory(category, reason string) {
	CategoriesAssigned.WithLabelValues(category, reason).Inc()
}

// RecordModelCallLatency records one model invocation.
func RecordModelCallLatency(model, status string, d time.Duration) {
	ModelCallLatency.WithLabelValues(model, status).Observe(float64(d.Milliseconds()))
}

// RecordRunDuration records one triage run.
func RecordRunDuration(d time.Duration) {
	RunDuration.Observe(d.Seconds())
}

// IncrementRunErrors records one aborted run.
func IncrementRunErrors() {
	RunErrors.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
