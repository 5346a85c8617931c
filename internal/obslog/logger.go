// Package obslog initializes the process-wide structured logger, per spec
// §6's requirement that stdout stay reserved for correlation ids and tool
// JSON while every diagnostic line goes to stderr.
package obslog

import (
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures zerolog with citeloom's defaults and redirects the
// standard library logger so every dependency's log.Print ends up
// structured too.
func Init(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	logger = logger.Level(parseLevel(level))

	log.Logger = logger
	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)

	return logger
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
