package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	urivetRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urivet_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	urivetRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urivet_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	urivetOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urivet_operations_total",
		Help: "Console workflow invocations by operation and outcome.",
	}, []string{"operation", "outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		urivetRequestsTotal.WithLabelValues(method, path, status).Inc()
		urivetRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// recordOperation counts a workflow invocation outcome.
func recordOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	urivetOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
