// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chetter"

var (
	deliveriesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook deliveries by event kind and outcome.",
		},
		[]string{"event", "outcome"},
	)

	operationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Count of lifecycle operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	backgroundTasksCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Count of finished background tasks by result.",
		},
		[]string{"result"},
	)

	backgroundTasksPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "background_tasks_pending",
			Help:      "Background tasks currently running.",
		},
	)
)

var registerMetrics sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(
			deliveriesCounter,
			operationsCounter,
			operationDuration,
			backgroundTasksCounter,
			backgroundTasksPending,
		)
	})
}

func RecordDelivery(event, outcome string) {
	deliveriesCounter.WithLabelValues(event, outcome).Inc()
}

// RecordOperation counts one lifecycle operation and observes its latency.
func RecordOperation(operation string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	operationsCounter.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func TaskStarted() {
	backgroundTasksPending.Inc()
}

// TaskFinished records the end of a background task. result is "ok",
// "failed", or "cancelled".
func TaskFinished(result string) {
	backgroundTasksPending.Dec()
	backgroundTasksCounter.WithLabelValues(result).Inc()
}
