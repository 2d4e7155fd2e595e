// Package assert centralizes invariant checks that should never fail in a
// correctly running server. Unlike ordinary error returns, a failed
// assertion means the data structures are already in an inconsistent
// state, so the only safe response is to log loudly and crash the
// offending worker rather than limp on.
package assert

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

// Logger is set once at startup by the process entrypoint; nil until then,
// in which case failures still panic but without a structured log line.
var Logger *zerolog.Logger

// SetLogger wires the package-level logger used by That and Never.
func SetLogger(l *zerolog.Logger) { Logger = l }

// That panics with a caller-annotated message if cond is false.
func That(cond bool, format string, args ...any) {
	if cond {
		return
	}
	fail(format, args...)
}

// Never panics unconditionally; use at the default case of a switch over a
// closed set of values, or any branch that should be unreachable.
func Never(format string, args ...any) {
	fail(format, args...)
}

func fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	}
	if Logger != nil {
		Logger.Error().
			Str("file", file).
			Int("line", line).
			Msg("invariant violation: " + msg)
	}
	panic(fmt.Sprintf("%s (%s:%d)", msg, file, line))
}
