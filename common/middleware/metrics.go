package middleware

import (
	"context"
	"time"

	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request count, latency and error class per route.
// Points are sent in the background and never delay the response.
func MetricsMiddleware(metrics awspkg.MetricsRecorder, serviceName string) gin.HandlerFunc {
	if metrics == nil || !metrics.IsEnabled() {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// FullPath keeps :id placeholders so dimensions stay low-cardinality
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusClass(status),
		}
		go emitRequestMetrics(metrics, dims, status, time.Since(start))
	}
}

func emitRequestMetrics(metrics awspkg.MetricsRecorder, dims map[string]string, status int, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = metrics.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
	_ = metrics.RecordLatency(ctx, awspkg.MetricHTTPLatency, took, dims)
	switch {
	case status >= 500:
		_ = metrics.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
		_ = metrics.RecordCount(ctx, awspkg.MetricHTTP5xx, dims)
	case status >= 400:
		_ = metrics.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
		_ = metrics.RecordCount(ctx, awspkg.MetricHTTP4xx, dims)
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return string(rune('0'+status/100)) + "xx"
}
