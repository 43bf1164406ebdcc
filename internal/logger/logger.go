// Package logger builds the zerolog.Logger the commands hand to every
// component. Components never reach for a package-level logger; they take
// theirs at construction.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console logger at the given level writing to w. Unknown
// levels fall back to info.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Open builds the configured logger: console on stderr, or JSON lines
// appended to a file when one is given. The close func is a no-op for
// stderr.
func Open(level, file string) (zerolog.Logger, func() error, error) {
	if file == "" {
		return New(level, os.Stderr), func() error { return nil }, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logger: open %s: %w", file, err)
	}
	log := zerolog.New(f).Level(ParseLevel(level)).With().Timestamp().Logger()
	return log, f.Close, nil
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
