// Package logging builds the process-wide structured logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates the base zerolog logger for the process, tagged with the
// service name and version. Every component derives a child logger from
// this one via .With().Str("component", ...).
func New(serviceName, serviceVersion, level, format string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logger zerolog.Logger
	if format == "console" || format == "pretty" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger.With().
		Str("service", serviceName).
		Str("version", serviceVersion).
		Logger()
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// DiagnosticSink adapts the engine's external logger(message) callback
// onto the structured logger, at Info level, so the engine's
// protocol-agnostic logging contract still lands as a structured field
// everywhere else in the process.
func DiagnosticSink(logger zerolog.Logger) func(message string) {
	return func(message string) {
		logger.Info().Msg(message)
	}
}
