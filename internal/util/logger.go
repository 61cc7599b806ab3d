// Package util provides logging setup and small process helpers.
package util

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs a slog default logger writing to stderr at the given
// level ("debug", "info", "warn", "error") and format ("text" or "json").
// The standard log package is routed through the same handler.
func SetupLogger(level, format string) {
	slog.SetDefault(NewLogger(os.Stderr, level, format))
}

// NewLogger builds a slog logger without installing it.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Info prints general system information messages.
func Info(msg string, args ...any) {
	slog.Info(fmt.Sprintf(msg, args...))
}

// Debug prints diagnostic messages.
func Debug(msg string, args ...any) {
	slog.Debug(fmt.Sprintf(msg, args...))
}

// Error prints error messages.
func Error(msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
}

// Fatal logs the message and exits with status 1.
func Fatal(msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
	os.Exit(1)
}

// StdLogger returns a *log.Logger that writes through slog at the given level,
// for libraries that only accept the standard logger.
func StdLogger(level slog.Level) *log.Logger {
	return slog.NewLogLogger(slog.Default().Handler(), level)
}
