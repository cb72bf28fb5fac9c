package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/measureme/internal/service"
)

// unmatchedRoute labels requests that hit no route, so random paths and
// media tokens never become metric labels.
const unmatchedRoute = "unmatched"

// Metrics returns middleware that records request latency per route template.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
