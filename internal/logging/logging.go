// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/internal/config"
)

// New returns a logger writing to w. Verbose forces debug level; Console
// selects human-readable output.
func New(w io.Writer, cfg config.LoggingConfig) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(Level(cfg)).With().Timestamp().Logger()
}

// Level maps the configured level name, defaulting to info.
func Level(cfg config.LoggingConfig) zerolog.Level {
	if cfg.Verbose {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
