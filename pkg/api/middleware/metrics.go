package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"benchrun/pkg/metrics"
)

// MetricsMiddleware records request counts and latency per route template.
// Requests to skip (probes and the scrape endpoint) are not recorded.
func MetricsMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		metrics.HTTPInFlight.Inc()
		defer metrics.HTTPInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		role := "anonymous"
		if claims, ok := GetUserFromContext(c); ok {
			role = string(claims.Role)
		}

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), role).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
