package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware records request metrics and logs each request
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, route, statusCode, duration)
		logger.RequestLogger(c.Request.Method, c.Request.URL.Path, c.ClientIP(), statusCode, duration)

		if duration > 5*time.Second {
			logger.Warn("Slow request", "route", route, "duration_ms", duration.Milliseconds())
		}
	}
}
