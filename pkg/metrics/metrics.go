package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "safina"
	subsystem = "store"
)

// Operation results used as the "result" label.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultExists   = "exists"
	ResultError    = "error"
)

// Metrics holds the Prometheus collectors for store operations.
type Metrics struct {
	// OperationTotal counts operations by op and result.
	OperationTotal *prometheus.CounterVec

	// OperationDuration observes operation latency by op.
	OperationDuration *prometheus.HistogramVec

	// Keys tracks the number of stored pairs.
	Keys prometheus.Gauge
}

// New creates all collectors and registers them with registry.
// Pass a fresh prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		OperationTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"op", "result"},
		),

		OperationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Histogram of store operation latencies",
				Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
			},
			[]string{"op"},
		),

		Keys: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "keys",
				Help:      "Current number of stored keys",
			},
		),
	}
}
