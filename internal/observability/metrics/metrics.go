// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "ewaybill_"

// Result labels shared by the operation, export and gateway collectors.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	rejectionTotal   *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	gatewayLatency *prometheus.HistogramVec

	expiredSwept prometheus.Counter
)

// Init registers collectors and DB-backed gauges. Safe to call once; later
// calls are no-ops.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total lifecycle operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Lifecycle operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)
		rejectionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rejections_total",
				Help: "Total precondition rejections by operation and reason",
			},
			[]string{"operation", "reason"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Total document exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Document export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		gatewayLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "gateway_latency_seconds",
				Help:    "Compliance gateway submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		expiredSwept = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "expired_swept_total",
				Help: "Total records transitioned to EXPIRED by the sweep",
			},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			rejectionTotal,
			exportTotal,
			exportLatency,
			gatewayLatency,
			expiredSwept,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveOperation records a lifecycle operation's duration and result.
func ObserveOperation(operation, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncRejection counts a precondition rejection by reason tag.
func IncRejection(operation, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if rejectionTotal != nil {
		rejectionTotal.WithLabelValues(operation, reason).Inc()
	}
}

// ObserveExport records a document export.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveGateway records a gateway submission.
func ObserveGateway(operation, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if gatewayLatency != nil {
		gatewayLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// AddExpired counts records swept into EXPIRED.
func AddExpired(count int) {
	if count <= 0 {
		return
	}
	if expiredSwept != nil {
		expiredSwept.Add(float64(count))
	}
}
