// Package logging configures the process-wide zerolog logger. Bridge
// subprocess output goes to the per-bridge log files, not here; this logger
// carries diagnostics about the run itself.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "PKGBRIDGE_LOG_LEVEL"
	EnvLogNoColor = "PKGBRIDGE_LOG_NOCOLOR"
)

var configureOnce sync.Once

// Configure sets up the global logger. Default level is warn so normal runs
// stay quiet next to the CLI reporter output.
func Configure() {
	configureOnce.Do(func() {
		level := zerolog.WarnLevel
		if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = lvl
		}
		w := zerolog.ConsoleWriter{Out: os.Stderr}
		if os.Getenv(EnvLogNoColor) != "" {
			w.NoColor = true
		}
		log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	})
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.NoLevel, false
	}
}
