package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics exposes Prometheus request instruments scraped from /metrics.
type HTTPMetrics struct {
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewHTTPMetrics registers request metrics on the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWithRegistry registers request metrics on reg.
func NewHTTPMetricsWithRegistry(reg prometheus.Registerer) *HTTPMetrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessd_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accessd_api_duration_seconds",
		Help:    "API request latency per method/route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	reg.MustRegister(apiRequests, apiDuration)

	return &HTTPMetrics{
		apiRequests: apiRequests,
		apiDuration: apiDuration,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *HTTPMetrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
