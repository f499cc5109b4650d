// Package logging configures the global zerolog logger. Logs go to
// stderr so command output on stdout stays clean for pipes.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLevel   = "BENCHFLEET_LOG_LEVEL"
	EnvNoColor = "BENCHFLEET_LOG_NOCOLOR"
)

var configureOnce sync.Once

// Configure sets up the global logger. verbose drops the level to debug
// and noColor disables ANSI output; BENCHFLEET_LOG_LEVEL and
// BENCHFLEET_LOG_NOCOLOR override both. Only the first call takes
// effect.
func Configure(verbose, noColor bool) {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		if lvl, ok := parseLevel(os.Getenv(EnvLevel)); ok {
			level = lvl
		}
		if v, ok := parseBool(os.Getenv(EnvNoColor)); ok {
			noColor = v
		}

		out := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		}
		log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	})
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
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
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
