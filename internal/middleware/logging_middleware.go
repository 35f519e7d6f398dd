// internal/middleware/logging_middleware.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scanner-service/internal/utils"
)

// LoggingMiddleware logs every finished request. Health probes are logged
// only when they fail.
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime)

		path := c.Request.URL.Path
		if isProbe(path) && c.Writer.Status() < 400 {
			return
		}

		logger.LogAPIRequest(
			c.GetString("request_id"),
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			duration,
		)
	}
}

func isProbe(path string) bool {
	return path == "/live" || path == "/ready" || strings.HasPrefix(path, "/health")
}
