// Package middleware holds the Gin middleware every portal route runs through:
// request ids, metrics, security headers, rate limiting, the session check that
// resolves and ensures the signed-in user, and role gating.
package middleware

import (
	"strconv"
	"time"

	"github.com/gdg-portal/permission-portal/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records http_requests_total and http_request_duration_seconds.
// The path label is the matched route template; unmatched requests share
// "<no-route>" to keep label cardinality bounded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
