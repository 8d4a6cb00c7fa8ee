// Package server hosts the collector's small operational HTTP surface
// (/health, /metrics) — not the dashboard read-side, which stays out of
// scope per spec.md §1. Grounded in the corpus's pkg/server + pkg/middleware.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
)

// requestIDMiddleware stamps every request with an X-Request-ID.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// loggingMiddleware logs one structured line per request.
func loggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logging.Fields{
			"status":    c.Writer.Status(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"latency":   time.Since(start),
			"client_ip": c.ClientIP(),
		}).Info("http request")
	}
}

// recoveryMiddleware turns a panic into a 500 instead of crashing the process.
func recoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logging.Fields{
					"error":  err,
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Error("request handler panic")
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
