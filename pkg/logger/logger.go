// Package logger builds the JSON slog loggers shared by every service.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ComponentKey is the attribute naming the subsystem that wrote a record.
const ComponentKey = "component"

// Config holds the configuration for the logger.
type Config struct {
	// Output defaults to os.Stdout.
	Output    io.Writer
	Level     slog.Level
	AddSource bool
}

// DefaultConfig logs at Info to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:  slog.LevelInfo,
		Output: os.Stdout,
	}
}

// New creates a JSON logger. A nil cfg uses DefaultConfig.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}))
}

// NewWithLevel creates a stdout JSON logger at level.
func NewWithLevel(level slog.Level) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Level = level
	return New(cfg)
}

// ParseLevel maps debug, info, warn (or warning) and error to a slog.Level,
// ignoring case and surrounding space, as they arrive from config files and
// WAREHOUSE_LOG_LEVEL. Anything else is Info.
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

// WithContext returns a logger that adds attrs to every record.
func WithContext(logger *slog.Logger, attrs ...slog.Attr) *slog.Logger {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return logger.With(args...)
}

// WithComponent tags every record with the component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(ComponentKey, component))
}
