// internal/logging/logging.go - Structured logger construction
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/r4c-viewport/internal/config"
)

// New builds the application logger from the logging configuration
func New(cfg config.LoggingConfig) zerolog.Logger {
	return NewWithWriter(cfg, outputFor(cfg.Output))
}

// NewWithWriter builds a logger writing to w; text format uses the console writer
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(cfg.Format, "text") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(w).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Str("service", "r4c-viewport").
		Logger()
}

// ParseLevel converts a level name into a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stdout") {
		return os.Stdout
	}
	return os.Stderr
}
