// Package logging provides the three-tier logger shared by every component
// in the pipeline: an actionable "ops" stream, a day-to-day "diag" stream,
// and a high-frequency "trace" stream. Callers build a Tiers with New (or
// Discard) and pass it to the components that log; a nil writer disables
// that stream entirely.
package logging

import (
	"io"
	"log"
)

// Tiers holds the three logger streams for a single package/component.
// Call New to build one, then use the Opsf/Diagf/Tracef methods.
type Tiers struct {
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// New builds a Tiers with the given prefix. Pass nil for any writer to
// silence that stream.
func New(prefix string, ops, diag, trace io.Writer) *Tiers {
	return &Tiers{
		ops:   newLogger(prefix, ops),
		diag:  newLogger(prefix, diag),
		trace: newLogger(prefix, trace),
	}
}

// Discard returns a Tiers with every stream disabled.
func Discard() *Tiers {
	return &Tiers{}
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs an actionable event: dropped frame, backend downgrade, a
// conversion or job failure an operator should notice.
func (t *Tiers) Opsf(format string, args ...interface{}) {
	if t != nil && t.ops != nil {
		t.ops.Printf(format, args...)
	}
}

// Diagf logs day-to-day operational context: backend selection, state
// transitions, tuning decisions.
func (t *Tiers) Diagf(format string, args ...interface{}) {
	if t != nil && t.diag != nil {
		t.diag.Printf(format, args...)
	}
}

// Tracef logs high-frequency per-frame/per-poll telemetry.
func (t *Tiers) Tracef(format string, args ...interface{}) {
	if t != nil && t.trace != nil {
		t.trace.Printf(format, args...)
	}
}
