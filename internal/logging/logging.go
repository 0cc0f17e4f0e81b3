// Package logging builds the zerolog logger the binaries share.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger writing to w at level. format "console" selects the human-readable
// writer; anything else writes JSON. An unknown level falls back to info.
func New(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Setup builds a stderr logger with New, installs it as the global logger and returns it.
func Setup(service, level, format string) zerolog.Logger {
	logger := New(os.Stderr, level, format).With().Str("service", service).Logger()
	log.Logger = logger
	return logger
}
