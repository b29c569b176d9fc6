// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

// Metrics holds the Prometheus collectors for one engine. It implements
// lore.Observer.
type Metrics struct {
	registry *prometheus.Registry

	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec
	QueryResults      prometheus.Histogram
	HTTPRequests      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lore_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"operation", "result"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lore_operation_errors_total",
				Help: "Total number of failed engine operations by error code",
			},
			[]string{"operation", "code"},
		),
		QueryResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lore_query_results",
				Help:    "Number of results returned per query",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lore_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveOperation records the duration and outcome of an engine operation.
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		code := string(loreerr.CodeOf(err))
		if code == "" {
			code = "unknown"
		}
		m.OperationErrors.WithLabelValues(op, code).Inc()
	}
	m.OperationDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

// ObserveQueryResults records how many results a query returned.
func (m *Metrics) ObserveQueryResults(n int) {
	m.QueryResults.Observe(float64(n))
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
