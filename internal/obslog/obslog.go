// Package obslog carries internal diagnostics for the transaction manager —
// lock refusals, deadlock victim selection, malformed commands — to a log
// sink that is entirely separate from the observable protocol output of
// SPEC_FULL.md §6. That output is written verbatim to stdout by internal/txn
// and internal/site; nothing in this package ever writes there.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level diagnostics sink. It is safe to use before
// Init is called: it defaults to a console writer at info level.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

// Level names accepted by Init, matching the REPCREC_LOG_LEVEL environment
// variable documented in SPEC_FULL.md §6.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the package-level Logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init reconfigures the package-level Logger. Call it once, from the CLI
// entry point, before dispatching any commands.
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
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the given component name,
// e.g. "lock-manager", "wait-for-graph", "dispatcher".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
