// Package logging configures the default log/slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup initialises the global slog default logger, writing to os.Stderr.
// level may be "debug", "info", "warn", or "error" (default "info").
// format may be "json" or "text" (default "text").
func Setup(level string, format string) {
	SetupWithWriter(os.Stderr, level, format)
}

// SetupWithWriter is Setup with an explicit destination.
func SetupWithWriter(wr io.Writer, level string, format string) {

	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(wr, opts)
	default:
		handler = slog.NewTextHandler(wr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a level name to a slog.Level, defaulting to slog.LevelInfo.
func ParseLevel(level string) slog.Level {

	switch strings.ToLower(level) {
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
