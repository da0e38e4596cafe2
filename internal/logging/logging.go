// Package logging provides the engine-wide structured logger.
//
// It wraps zerolog the way a prior internal logger package
// wrapped it: a package-level default logger with Infof/Warnf/Errorf/
// Debugf helpers, plus With(component) for a component-scoped child
// logger. Every package in this module logs through here rather than
// the standard library log package.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	base    zerolog.Logger
	initted bool
)

// Init configures the package-level logger. level is one of
// debug|info|warn|error; pretty renders human-readable console output
// (for local runs), otherwise JSON lines are emitted (for production).
func Init(level string, pretty bool) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	base = zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	initted = true
}

func logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initted {
		// Safe default so early-startup logging before Init() never panics.
		return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	}
	return base
}

// L returns the underlying zerolog.Logger for structured call sites
// that want field builders (e.g. log.With().Str(...).Float64(...)).
func L() zerolog.Logger { return logger() }

// With returns a child logger tagged with a "component" field, mirroring
// the per-subsystem loggers instantiated per trading-loop instance.
func With(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

func Debugf(format string, args ...interface{}) { logger().Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { logger().Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { logger().Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { logger().Error().Msgf(format, args...) }
