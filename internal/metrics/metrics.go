// Package metrics exposes ledger and storage instrumentation to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hourlog/internal/attendance"
)

// Ledger implements attendance.OperationObserver and store.Observer.
type Ledger struct {
	operations  *prometheus.CounterVec
	storage     *prometheus.HistogramVec
	storageErr  *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// serve them from promhttp.Handler.
func New(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hourlog",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"op", "reason"}),
		storage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hourlog",
			Name:      "storage_duration_seconds",
			Help:      "Time spent in the storage backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "table"}),
		storageErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hourlog",
			Name:      "storage_errors_total",
			Help:      "Failed storage calls.",
		}, []string{"op", "table"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hourlog",
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.operations, m.storage, m.storageErr, m.rateLimited)
	return m
}

// ObserveOperation counts one service call.
func (m *Ledger) ObserveOperation(op string, err error) {
	m.operations.WithLabelValues(op, attendance.Reason(err)).Inc()
}

// ObserveStorage records one backend call.
func (m *Ledger) ObserveStorage(op, table string, took time.Duration, err error) {
	m.storage.WithLabelValues(op, table).Observe(took.Seconds())
	if err != nil {
		m.storageErr.WithLabelValues(op, table).Inc()
	}
}

// RateLimited counts a rejected request.
func (m *Ledger) RateLimited() { m.rateLimited.Inc() }
