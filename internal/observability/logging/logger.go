// Package logging builds the process-wide structured logger. Both the
// api and worker binaries log JSON to stdout, tagged with the service
// name.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the JSON logger and installs it as the slog default so
// packages logging through slog.Default pick it up too.
func Setup(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
