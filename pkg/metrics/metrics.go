package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Search API metrics
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexvault_gateway_requests_total",
			Help: "Total number of search management API requests",
		},
		[]string{"method", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexvault_gateway_request_duration_seconds",
			Help:    "Search management API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method"},
	)

	GatewayRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexvault_gateway_retries_total",
			Help: "Total number of retried search management API requests",
		},
		[]string{"method"},
	)

	// Batch metrics
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexvault_batch_items_total",
			Help: "Total number of processed indexes per batch operation",
		},
		[]string{"operation", "status"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexvault_batch_duration_seconds",
			Help:    "Batch operation duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	LastSuccessfulBackup = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexvault_last_backup_timestamp_seconds",
			Help: "Unix time of the last backup run without failed items",
		},
	)

	// Lifecycle metrics
	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexvault_lifecycle_transitions_total",
			Help: "Total number of lifecycle state transitions",
		},
		[]string{"from", "to"},
	)
)

// RecordGatewayRequest records a search API request metric
func RecordGatewayRequest(method, status string, duration float64) {
	GatewayRequestsTotal.WithLabelValues(method, status).Inc()
	GatewayRequestDuration.WithLabelValues(method).Observe(duration)
}

// RecordGatewayRetry records a retried search API request
func RecordGatewayRetry(method string) {
	GatewayRetriesTotal.WithLabelValues(method).Inc()
}

// RecordBatchItem records the outcome of a single batch item
func RecordBatchItem(operation string, success bool) {
	status := "succeeded"
	if !success {
		status = "failed"
	}
	BatchItemsTotal.WithLabelValues(operation, status).Inc()
}

// RecordBatchDuration records batch duration
func RecordBatchDuration(operation string, duration float64) {
	BatchDuration.WithLabelValues(operation).Observe(duration)
}

// RecordTransition records a lifecycle state transition
func RecordTransition(from, to string) {
	LifecycleTransitionsTotal.WithLabelValues(from, to).Inc()
}

// Push sends the default registry to a Prometheus Pushgateway. It is a no-op
// when url is empty, which is the case for interactive runs.
func Push(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
