package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup replaces the process-wide default logger with a JSON handler tagged
// with the service name. The rest of the codebase logs through log/slog's
// package-level functions, so this runs once at startup before anything else.
func Setup(level, service string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler).With("service", service))
}

func parseLevel(level string) slog.Level {
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
