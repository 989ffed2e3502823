package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerKey is the key used to store the request-scoped logger in the context
const LoggerKey = "request_logger"

// Logger middleware logs HTTP request details including method, path, status,
// latency, client IP, and correlation ID if present. Handlers can log with the
// same correlation id through GetLogger.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		correlationID := GetCorrelationID(c)

		requestLogger := logger
		if correlationID != "" {
			requestLogger = logger.With("correlation_id", correlationID)
		}
		c.Set(LoggerKey, requestLogger)

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		if raw != "" {
			path = path + "?" + raw
		}

		requestLogger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", clientIP,
			"user_agent", c.Request.UserAgent(),
		)
	}
}

// GetLogger returns the request-scoped logger, or fallback when the Logger
// middleware did not run
func GetLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if l, exists := c.Get(LoggerKey); exists {
		if requestLogger, ok := l.(*slog.Logger); ok {
			return requestLogger
		}
	}
	return fallback
}
