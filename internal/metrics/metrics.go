// Package metrics provides Prometheus metrics for the thumbgen API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thumbgen"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeExceeded = "exceeded"
	OutcomeError    = "error"
	OutcomeIgnored  = "ignored"
)

// Collector holds all Prometheus metrics for the API.
type Collector struct {
	// Usage metrics
	ConsumeTotal *prometheus.CounterVec

	// Billing and identity webhook metrics
	WebhookEventsTotal *prometheus.CounterVec

	// Generation metrics
	GenerationDuration *prometheus.HistogramVec

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates a collector registered on its own registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector whose metrics are registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ConsumeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_consume_total",
				Help:      "Usage consume attempts by resource kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Verified webhook events by source, type and outcome",
			},
			[]string{"source", "event_type", "outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Image provider call duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
