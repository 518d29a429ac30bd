// Package logging wraps zerolog with the field conventions the rest of
// hod's components rely on: every log line carries which rank emitted it,
// and lines about a specific distribution or phase carry those too.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Init configures it; components
// that need contextual fields derive a child via WithRank/WithDistribution
// rather than writing to this one directly. Before Init it writes JSON to
// stdout, which is what package-level WithComponent loggers (derived at
// package initialization, before any main calls Init) keep using.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Level names the configurable verbosity; it mirrors the strings accepted
// by HOD_LOG_LEVEL.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the base logger.
type Config struct {
	Level      Level
	Output     io.Writer
	JSONOutput bool
}

// Init installs the process-wide logger. Call once from each cmd/ main
// before anything else logs.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagging every line with which
// component (probe, planner, executor, ...) produced it.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRank returns a child logger tagging every line with the emitting
// rank, the single most useful field once more than one process is
// logging to the same stream.
func WithRank(rank int) zerolog.Logger {
	return Logger.With().Int("rank", rank).Logger()
}

// WithDistribution returns a child logger additionally tagged with the
// distribution (service kind) the log line concerns.
func WithDistribution(l zerolog.Logger, kind string) zerolog.Logger {
	return l.With().Str("distribution", kind).Logger()
}
