package globals

import (
	"os"
	"time"

	"github.com/KatelynHaworth/csblob/config"
	"github.com/rs/zerolog"
)

var (
	Logger = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.TimeFormat = time.RFC3339
	})).With().Timestamp().Logger()

	// Config is the signing configuration
	// loaded before the sign command runs.
	Config *config.ConfigurationV1
)

// SetVerbose switches the global log level
// between info and debug.
func SetVerbose(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}

// TargetLogger returns a child of Logger
// tagged with the file a target signs.
func TargetLogger(target config.Target) zerolog.Logger {
	return Logger.With().Str("file", target.File).Logger()
}
