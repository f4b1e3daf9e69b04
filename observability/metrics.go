package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics records HTTP traffic per service and route pattern.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inflight  *prometheus.GaugeVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *APIMetrics
)

// ModuleMetrics returns the process wide API metrics.
func ModuleMetrics() *APIMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by service, route and status code.",
			}, []string{"service", "route", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API handler latency.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			}, []string{"service", "route"}),
			inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Requests currently being served, including open streams.",
			}, []string{"service"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "Requests refused by rate limiting, by route group.",
			}, []string{"service", "group"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.latency,
			apiRegistry.inflight,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Begin marks a request in flight and returns the func that ends it.
func (m *APIMetrics) Begin(service string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.inflight.WithLabelValues(normalizeLabel(service))
	gauge.Inc()
	return gauge.Dec
}

// Observe records one completed request.
func (m *APIMetrics) Observe(service, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	service = normalizeLabel(service)
	route = normalizeLabel(route)
	m.requests.WithLabelValues(service, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(service, route).Observe(elapsed.Seconds())
}

// RecordThrottle counts a request refused by a limiter.
func (m *APIMetrics) RecordThrottle(service, group string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(service), normalizeLabel(group)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
