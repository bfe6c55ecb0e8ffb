package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ServiceName is attached to every record as the service attribute
const ServiceName = "aegisflux-analyzer"

// New creates a JSON logger writing to w at the given level, tagged with the
// service and component attributes
func New(w io.Writer, level, component string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With(
		"service", ServiceName,
		"component", component,
	)
}

// ParseLevel parses a log level string, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
