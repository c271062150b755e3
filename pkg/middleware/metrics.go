package middleware

import (
	"strconv"
	"time"

	"github.com/alumni-network/alumni-backend-system/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// RequestMetrics records request latency per matched route. Unmatched paths
// share one label.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
