package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level ("debug", "info", "warn", "error") and the
// handler format ("json" or "text").
type Config struct {
	Level  string
	Format string
}

// InitLogger builds the process logger and installs it as slog's default.
func InitLogger(cfg Config) *slog.Logger {
	return initLogger(cfg, os.Stdout)
}

func initLogger(cfg Config, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Info("logger_initialized", "level", level.String(), "format", cfg.Format)
	return logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(v string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
