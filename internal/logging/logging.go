// Package logging builds the zerolog logger shared by the CLI and the
// analysis pipeline.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"phantomqa/pkg/config"
	"phantomqa/pkg/qaerr"
)

// New returns a timestamped logger writing to stderr in the format and at
// the level named by cfg.
func New(cfg *config.Config) (zerolog.Logger, error) {
	return NewWriter(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, format, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	case "json":
	default:
		return zerolog.Nop(), qaerr.InvalidInput("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// ParseLevel maps a level name to a zerolog level; the empty name is info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, qaerr.InvalidInput("unknown log level %q", level)
	}
	return lvl, nil
}

// Component tags every event of l with the emitting component.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
