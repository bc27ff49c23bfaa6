// Package logx holds the process-wide zerolog logger.
//
// Output always goes to stderr: stdout is reserved for the JSON-RPC stream
// spoken with the IDE.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Log is the shared logger used throughout the bridge.
var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Configure sets the global level and installs a human readable writer on stderr.
func Configure(level string) {
	ConfigureOutput(level, os.Getenv("LOG_FORMAT"), os.Stderr)
}

// ConfigureOutput sets the global level and routes log lines to w.
// format "json" keeps zerolog's native encoding; anything else uses the console writer.
func ConfigureOutput(level, format string, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		Log = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	Log = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
}

// ParseLevel converts a level name to a zerolog level.
// Accepts all, trace, debug, info, warn, warning, error, fatal, none, off and disabled.
// Unknown values default to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
