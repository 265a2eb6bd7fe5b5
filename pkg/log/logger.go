package log

import (
	"log/slog"
	"os"
)

// New constructs the engine's standard JSON logger at info level
func New(service, env, version string) *slog.Logger {
	return NewWithLevel(service, env, version, slog.LevelInfo)
}

// NewWithLevel constructs the engine's standard JSON logger. Every record
// carries the service, env, and version attrs so aggregated logs from
// multiple engines stay attributable
func NewWithLevel(
	service, env, version string, lvl slog.Level,
) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lvl}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	return logger.With(
		slog.String("service", service),
		slog.String("env", env),
		slog.String("version", version))
}
