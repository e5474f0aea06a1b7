// Package logger builds the zerolog logger shared by the engine components.
package logger

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the named level ("debug", "info",
// "warn", "error", "disabled"). Unknown levels fall back to info. Pretty
// selects a human-readable console format instead of JSON lines.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).
		With().
		Timestamp().
		Str("app", "edurag").
		Logger().
		Level(lvl)
}
