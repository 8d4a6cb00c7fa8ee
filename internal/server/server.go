package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/injooinjoo/streaming-agent-sub004/internal/config"
	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/metrics"
)

// SetupRouter builds the gin router for /health and /metrics.
func SetupRouter(logger logging.Logger, healthChecker *metrics.HealthChecker, collector *metrics.Collector) *gin.Engine {
	if config.GetEnv("GIN_MODE", "release") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(logger))
	router.Use(recoveryMiddleware(logger))
	router.Use(collector.Middleware())

	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", collector.Handler())

	return router
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully within 30s (mirrors the collector's own shutdown bound,
// spec.md §4.6).
func Run(ctx context.Context, port string, router *gin.Engine, logger logging.Logger) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", port).Info("starting operational HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("operational server forced shutdown: %w", err)
	}
	logger.Info("operational HTTP server stopped")
	return nil
}
