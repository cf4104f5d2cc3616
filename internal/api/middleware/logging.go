package middleware

import (
	"time"

	"github.com/frostdev-ops/meterdash/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs every request through the batch logger, so the
// steady stream of successful dashboard polls is summarised rather than
// logged line by line.
func LoggingMiddleware(log *logger.BatchLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := logrus.Fields{
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(RequestIDKey),
			"query":      c.Request.URL.RawQuery,
			"user_agent": c.Request.UserAgent(),
			"size":       c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			fields["error_message"] = c.Errors.String()
		}

		log.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), fields)
	}
}
