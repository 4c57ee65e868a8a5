// Package logging constructs the structured zerolog.Logger every engine
// component is handed at construction. Grounded on the teacher's
// bracketed-component log lines (e.g. "[Rotator] ...", "[Signal] ..."),
// replayed here as zerolog's "component" field instead of a string prefix.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the base logger. In production it writes structured JSON to
// w (normally os.Stdout); tests pass io.Discard or a buffer.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning package's name,
// the replacement for the teacher's "[Name] ..." prefix convention.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
