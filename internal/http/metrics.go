package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds all HTTP-related metrics.
type HTTPMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestDur     *prometheus.HistogramVec
	activeRequests prometheus.Gauge
}

// NewHTTPMetrics registers the HTTP metrics with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plains_http_requests_total",
			Help: "Total HTTP requests labeled by method, endpoint, and status code.",
		}, []string{"method", "endpoint", "status"}),
		requestDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plains_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "endpoint", "status"}),
		activeRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "plains_http_active_requests",
			Help: "Number of currently active HTTP requests.",
		}),
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			err := next(c)
			if err != nil {
				// Let the error handler write the status before labeling.
				c.Error(err)
				err = nil
			}

			labels := prometheus.Labels{
				"method":   c.Request().Method,
				"endpoint": normalizePath(c.Path()),
				"status":   strconv.Itoa(c.Response().Status),
			}
			m.requestsTotal.With(labels).Inc()
			m.requestDur.With(labels).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// normalizePath keeps the route template so path parameters do not become
// label values. Unmatched requests share one label.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
