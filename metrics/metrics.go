// Package metrics exposes Prometheus collectors for the HTTP surface and the
// order workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordercore"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// OrderMetrics counts order workflow outcomes.
type OrderMetrics struct {
	Created       prometheus.Counter
	Rejected      *prometheus.CounterVec // by reason
	Compensations *prometheus.CounterVec // by result: released, failed
	Transitions   *prometheus.CounterVec // by target status
}

// Registry bundles every collector with the registry that serves them.
type Registry struct {
	reg    *prometheus.Registry
	Server *ServerMetrics
	Orders *OrderMetrics
}

// NewRegistry builds an isolated registry holding the Go and process
// collectors plus every collector above.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "created_total",
		Help:      "Orders persisted successfully.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "rejected_total",
		Help:      "Order creations that failed, by reason.",
	}, []string{"reason"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "compensations_total",
		Help:      "Stock releases performed while unwinding a failed order.",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "status_transitions_total",
		Help:      "Accepted order status changes, by target status.",
	}, []string{"to"})

	reg.MustRegister(requests, latency, created, rejected, compensations, transitions)
	return &Registry{
		reg:    reg,
		Server: &ServerMetrics{Requests: requests, LatencyMS: latency},
		Orders: &OrderMetrics{
			Created:       created,
			Rejected:      rejected,
			Compensations: compensations,
			Transitions:   transitions,
		},
	}
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
