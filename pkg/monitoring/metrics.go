package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the service's Prometheus registrations: the
// standard HTTP request metrics plus whatever domain counters the caller
// registers via NewCounter.
type MetricsCollector struct {
	serviceName string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	sanitized := strings.ReplaceAll(serviceName, "-", "_")

	mc := &MetricsCollector{serviceName: sanitized}

	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: mc.serviceName + "_http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"method", "endpoint", "status"},
	)
	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: mc.serviceName + "_http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets},
		[]string{"method", "endpoint"},
	)
	serviceInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: mc.serviceName + "_service_info", Help: "Service build information"},
		[]string{"version", "commit"},
	)

	prometheus.MustRegister(mc.httpRequestsTotal, mc.httpRequestDuration, serviceInfo)
	serviceInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// NewCounter registers and returns a service-namespaced counter vector.
func (mc *MetricsCollector) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: mc.serviceName + "_" + name, Help: help}, labels)
	prometheus.MustRegister(counter)
	return counter
}

// MetricsMiddleware records per-request count and latency.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		mc.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// Handler serves the Prometheus exposition format at `/metrics`.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
