// Package telemetry exposes dispatch observations as prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"toolgate/internal/domain"
)

// PrometheusMetrics implements domain.Metrics on a prometheus registry.
type PrometheusMetrics struct {
	registry     *prometheus.Registry
	callDuration *prometheus.HistogramVec
	callsTotal   *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	catalogSize  prometheus.Gauge
	tasksStarted *prometheus.CounterVec
}

// NewPrometheusMetrics builds the metric set on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"tool", "status"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_calls_total",
				Help: "Total number of tool calls by outcome",
			},
			[]string{"tool", "status"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_cache_lookups_total",
				Help: "Metadata cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		catalogSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_catalog_tools",
				Help: "Current number of registered tools",
			},
		),
		tasksStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_tasks_started_total",
				Help: "Long-running tasks started by tool",
			},
			[]string{"tool"},
		),
	}
}

func (p *PrometheusMetrics) ObserveCall(tool string, status domain.CallStatus, duration time.Duration) {
	p.callDuration.WithLabelValues(tool, string(status)).Observe(duration.Seconds())
	p.callsTotal.WithLabelValues(tool, string(status)).Inc()
}

func (p *PrometheusMetrics) ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (p *PrometheusMetrics) SetCatalogSize(n int) {
	p.catalogSize.Set(float64(n))
}

func (p *PrometheusMetrics) ObserveTaskStart(tool string) {
	p.tasksStarted.WithLabelValues(tool).Inc()
}

// Handler serves the registry in prometheus exposition format.
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)

// NoopMetrics discards all observations; used in tests.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) ObserveCall(string, domain.CallStatus, time.Duration) {}
func (NoopMetrics) ObserveCacheLookup(string, bool)                      {}
func (NoopMetrics) SetCatalogSize(int)                                   {}
func (NoopMetrics) ObserveTaskStart(string)                              {}

var _ domain.Metrics = (*NoopMetrics)(nil)
