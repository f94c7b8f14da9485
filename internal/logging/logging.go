// Package logging provides structured logging for tonestore.
//
// This package wraps the standard library's log/slog package so every
// component logs the same way. It supports text and JSON output, a
// configurable level and component-scoped loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false, os.Stderr)
//
//	// Get a component logger
//	log := logging.Component("dataset")
//	log.Info("store opened", "path", path, "datasets", 12)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
// A nil writer logs to stderr so command output on stdout stays clean.
func Init(level slog.Level, jsonFormat bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func logger() *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false, nil)
	}
	return Logger
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return logger().With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("featuredb")
//	log.Info("batch written") // Output: time=... level=INFO component=featuredb msg="batch written"
func Component(name string) *slog.Logger {
	return logger().With("component", name)
}

// WithContext returns a logger that includes the store path and table
// carried by ctx, if any.
func WithContext(ctx context.Context) *slog.Logger {
	l := logger()

	if path, ok := ctx.Value(contextKeyStore).(string); ok {
		l = l.With("store", path)
	}
	if table, ok := ctx.Value(contextKeyTable).(string); ok {
		l = l.With("table", table)
	}

	return l
}

type contextKey int

const (
	contextKeyStore contextKey = iota
	contextKeyTable
)

// ContextWithStore adds a store path to the context for logging.
func ContextWithStore(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, contextKeyStore, path)
}

// ContextWithTable adds a table path to the context for logging.
func ContextWithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, contextKeyTable, table)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}
