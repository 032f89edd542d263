// Package logging wires the process-wide zerolog logger used across
// the remediation engine: info/warn/debug to stdout, error/fatal/panic
// to stderr, each component attaching its own sub-logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	writer := zerolog.MultiLevelWriter(
		levelWriter{
			Writer: zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
			levels: []zerolog.Level{zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel},
		},
		levelWriter{
			Writer: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
			levels: []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		},
	)
	base = zerolog.New(writer).With().Timestamp().Logger()
}

// SetLevel adjusts the global minimum log level (used by the CLI's
// --verbose flag).
func SetLevel(level zerolog.Level) {
	base = base.Level(level)
}

// Component returns a sub-logger tagged with the given component name,
// the idiom used throughout the engine: registry, fixengine, approval, …
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// levelWriter routes records to Writer only if their level is in levels.
// https://stackoverflow.com/questions/76858037 (the teacher's own source note)
type levelWriter struct {
	io.Writer
	levels []zerolog.Level
}

func (w levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
