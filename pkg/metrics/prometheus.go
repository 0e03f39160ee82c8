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

// Metrics holds the Prometheus collectors of the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	turnsTotal      *prometheus.CounterVec
	callsEndedTotal *prometheus.CounterVec

	providerRequestsTotal *prometheus.CounterVec
	providerDuration      *prometheus.HistogramVec
	fallbacksTotal        *prometheus.CounterVec

	cacheLookupsTotal *prometheus.CounterVec
}

// NewMetrics creates collectors on a dedicated registry.
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		turnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_turns_total",
				Help:        "Conversation turns by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		callsEndedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_ended_total",
				Help:        "Finalized calls by terminal status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		providerRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "provider_requests_total",
				Help:        "Provider invocations by capability, provider and outcome",
				ConstLabels: labels,
			},
			[]string{"capability", "provider", "outcome"},
		),
		providerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "provider_request_duration_seconds",
				Help:        "Provider latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16},
			},
			[]string{"capability", "provider"},
		),
		fallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "provider_fallbacks_total",
				Help:        "Times a capability ended on its last-resort fallback",
				ConstLabels: labels,
			},
			[]string{"capability"},
		),
		cacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "audio_cache_lookups_total",
				Help:        "Audio cache lookups by result (hit, miss, shared)",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry (tests, custom collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCallEnded(status string) {
	if m == nil {
		return
	}
	m.callsEndedTotal.WithLabelValues(status).Inc()
}

// RecordProvider counts one provider attempt. outcome is ok, error or skipped.
func (m *Metrics) RecordProvider(capability, provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequestsTotal.WithLabelValues(capability, provider, outcome).Inc()
	if outcome != "skipped" {
		m.providerDuration.WithLabelValues(capability, provider).Observe(d.Seconds())
	}
}

func (m *Metrics) RecordFallback(capability string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(capability).Inc()
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}
