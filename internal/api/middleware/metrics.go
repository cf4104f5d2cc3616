package middleware

import (
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request counts and latencies by route template.
func MetricsMiddleware(collector metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// unmatched routes share one label to bound cardinality
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
