// Package metrics holds the Prometheus collectors for generation,
// validation and adjustment outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	generations      *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	repairs          *prometheus.CounterVec
	adjustments      *prometheus.CounterVec
	generationTime   *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathfinder_generations_total",
			Help: "Roadmap generations by final strategy.",
		}, []string{"strategy"}),
		providerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathfinder_ai_failures_total",
			Help: "AI path failures that triggered the rule-based fallback, by reason.",
		}, []string{"reason"}),
		repairs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathfinder_validator_repairs_total",
			Help: "Repairs applied to provider output, by kind.",
		}, []string{"kind"}),
		adjustments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathfinder_adjustments_total",
			Help: "Adaptive adjustments by outcome.",
		}, []string{"outcome"}),
		generationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pathfinder_generation_duration_seconds",
			Help:    "End-to-end roadmap generation latency.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20},
		}, []string{"strategy"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveGeneration(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(strategy).Inc()
	m.generationTime.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) AIFailure(reason string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Repair(kind string) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(kind).Inc()
}

func (m *Metrics) Adjustment(outcome string) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinHandler adapts Handler for a gin route.
func (m *Metrics) GinHandler() gin.HandlerFunc {
	h := m.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware counts requests and observes their latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.httpRequests.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(time.Since(start).Seconds())
	}
}
