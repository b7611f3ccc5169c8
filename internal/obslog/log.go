/*
Package obslog provides structured logging for the storage core using
zerolog.

It follows the same shape as a conventional component-scoped zerolog setup:
a package-level global logger initialized once via Init, plus helpers that
derive child loggers carrying a fixed set of context fields (backend kind,
operation id, CID) so call sites never have to repeat themselves.

# Usage

	obslog.Init(obslog.Config{Level: obslog.InfoLevel, JSONOutput: true})

	log := obslog.WithBackend(types.BackendIPFS)
	log.Info().Str("operation_id", opID).Msg("dispatching operation")

	log := obslog.WithOperationID(opID)
	log.Error().Err(err).Msg("dispatch failed")
*/
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/wal-cas/internal/types"
)

// Logger is the global logger instance, set by Init.
var Logger zerolog.Logger

// Level is a logging verbosity threshold.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call more than once; the
// most recent call wins.
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
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithBackend returns a child logger tagged with a backend kind.
func WithBackend(backend types.BackendKind) zerolog.Logger {
	return Logger.With().Str("backend", string(backend)).Logger()
}

// WithOperationID returns a child logger tagged with an operation id.
func WithOperationID(id string) zerolog.Logger {
	return Logger.With().Str("operation_id", id).Logger()
}

// WithCID returns a child logger tagged with a content identifier.
func WithCID(cid string) zerolog.Logger {
	return Logger.With().Str("cid", cid).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func init() {
	// Sensible default so packages that log before main() calls Init
	// (e.g. in tests) still get readable output instead of a zero-value
	// discard logger.
	Init(Config{Level: InfoLevel, JSONOutput: false})
}
