// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service updates. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ratiosArchived  prometheus.Counter
	ratiosUpserted  prometheus.Counter
	sweepArchived   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ffp",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ffp",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ratiosArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ffp",
			Name:      "transfer_ratios_archived_total",
			Help:      "Transfer ratios archived by program updates.",
		}),
		ratiosUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ffp",
			Name:      "transfer_ratios_upserted_total",
			Help:      "Transfer ratios inserted, changed or reactivated by program updates.",
		}),
		sweepArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ffp",
			Name:      "sweep_transfer_ratios_archived_total",
			Help:      "Transfer ratios archived because their credit card was archived.",
		}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.ratiosArchived, m.ratiosUpserted, m.sweepArchived)
	return m
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReconcile(archived, upserted int) {
	if m == nil {
		return
	}
	m.ratiosArchived.Add(float64(archived))
	m.ratiosUpserted.Add(float64(upserted))
}

func (m *Metrics) ObserveSweep(archived int64) {
	if m == nil {
		return
	}
	m.sweepArchived.Add(float64(archived))
}
