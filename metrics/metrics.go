// Package metrics exposes Prometheus collectors for request/reply exchanges.
//
// Handler failures never reach the wire (clients only see a status code), so the failure
// counters here are where their kind stays observable.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reqrep"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsHandled *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	MessagesSent    prometheus.Counter
	AckTimeouts     prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests handled, by port and reply status.",
		}, []string{"port", "status"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "handler_failures_total",
			Help:      "Handler failures converted to status 1 replies, by kind.",
		}, []string{"kind"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time spent in the request handler.",
			Buckets:   prometheus.DefBuckets,
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "messages_sent_total",
			Help:      "Messages transmitted by endpoints.",
		}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "ack_timeouts_total",
			Help:      "Acknowledgments that did not arrive before the deadline.",
		}),
	}

	m.registry.MustRegister(
		m.RequestsHandled,
		m.HandlerFailures,
		m.RequestDuration,
		m.MessagesSent,
		m.AckTimeouts,
	)
	return m
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(port, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsHandled.WithLabelValues(strconv.Itoa(port), strconv.Itoa(status)).Inc()
	m.RequestDuration.Observe(d.Seconds())
}

// ObserveFailure records one handler failure of the given kind.
func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSend() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) ObserveTimeout() {
	if m == nil {
		return
	}
	m.AckTimeouts.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
