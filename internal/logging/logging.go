// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	root zerolog.Logger
)

type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))
		var out io.Writer = os.Stdout
		if cfg.Format != "json" {
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		root = zerolog.New(out).With().Timestamp().Logger()
	})
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the root logger, initializing it with defaults when
// Init was never called.
func Get() *zerolog.Logger {
	Init(Config{Level: "info", Format: "console"})
	return &root
}

// Component returns a logger scoped to one subsystem.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}
