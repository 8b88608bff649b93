package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the service logger. Development gets a human-readable
// console writer at debug level; everything else emits JSON at info level.
// Every line carries the service tag so aggregated logs stay attributable.
func NewLogger(appEnv string) zerolog.Logger {
	return newLoggerTo(os.Stdout, appEnv)
}

func newLoggerTo(w io.Writer, appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "deckpilot").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases the zerolog.Logger so the rest of the module depends on the
// logging contract without importing the third-party package directly.
type Logger = zerolog.Logger
