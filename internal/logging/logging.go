// Package logging builds the zerolog logger shared by the server, runner and CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stderr. Pretty mode uses the console writer,
// otherwise one JSON object per line.
func New(level string, pretty bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, pretty)
}

// NewWithWriter is New with an explicit destination (used by tests).
func NewWithWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Nop returns a disabled logger for tests and library defaults.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
