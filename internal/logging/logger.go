// Package logging wraps logrus with the conventions used across the
// collector: JSON output, one "service" field per process.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/injooinjoo/streaming-agent-sub004/internal/config"
)

// Logger is the shared logger type.
type Logger = *logrus.Logger

// Fields is structured logging key/value context.
type Fields = logrus.Fields

// NewLogger creates a JSON-formatted logger at the level named by LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService returns a logger that stamps every entry with the
// given service name.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	base := NewLogger()
	return base.WithField("service", serviceName).Logger
}
