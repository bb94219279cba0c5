// Package logger provides structured logging for the intake service.
//
// It wraps log/slog with a process-wide default logger, LOG_LEVEL handling,
// a text or JSON output format and helpers that attach the call identifier
// to every line logged on behalf of a call.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Log format constants.
const (
	FormatJSON = "json"
	FormatText = "text"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))
	format := os.Getenv("LOG_FORMAT")
	defaultLogger.Store(newLogger(os.Stderr, level, format))
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Configure replaces the default logger. level is a level name
// (debug, info, warn, error) and format is "text" or "json".
func Configure(level, format string) {
	defaultLogger.Store(newLogger(os.Stderr, ParseLevel(level), format))
}

// SetOutput replaces the default logger with one writing to w.
// Mostly useful in tests.
func SetOutput(w io.Writer, level slog.Level, format string) {
	defaultLogger.Store(newLogger(w, level, format))
}

// SetVerbose enables debug-level logging when verbose is true.
func SetVerbose(verbose bool) {
	if verbose {
		Configure("debug", "")
		return
	}
	Configure("info", "")
}

// Default returns the current default logger.
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// ForCall returns a logger that tags every record with the call identifier.
func ForCall(callID string) *slog.Logger {
	return Default().With("call_id", callID)
}

// Info logs an informational message with key-value attributes.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// InfoContext logs an informational message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Warn logs a warning. Use for recoverable, call-scoped problems.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs an error that affected a call but not the process.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// ErrorContext logs an error with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}
