package pstore

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger every DB logs through: Open derives
// its component sub-loggers from it, and there is no per-database logger
// option. Following the teacher's sibling example (cuemby-warren/pkg/log),
// it writes timestamped entries to a console writer on stderr and can be
// replaced wholesale.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// componentLogger returns a child logger tagged with the given component,
// mirroring cuemby-warren's log.WithComponent helper.
func componentLogger(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
