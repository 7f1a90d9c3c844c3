package harness

import (
	"github.com/roach88/nodom/internal/value"
)

// Trace directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// TraceEvent is one message crossing the session boundary.
type TraceEvent struct {
	Seq       int64
	Direction string
	Session   string
	Message   value.Value
}

// Kind returns the message's nd_type, or "" when it has none.
func (e TraceEvent) Kind() string {
	if obj, ok := e.Message.(value.Object); ok {
		if s, ok := obj["nd_type"].(value.String); ok {
			return string(s)
		}
	}
	return ""
}

// Object renders the event for golden comparison.
func (e TraceEvent) Object() value.Object {
	return value.NewObject(
		value.O("seq", value.Int(e.Seq)),
		value.O("dir", value.String(e.Direction)),
		value.O("session", value.String(e.Session)),
		value.O("msg", e.Message),
	)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	Trace []TraceEvent

	// Errors lists what failed.
	Errors []string

	// Data is the final data namespace.
	Data value.Object

	// Journals holds each session's statements.
	Journals map[string][]string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Journals: make(map[string][]string),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outbound returns the outbound events, optionally for one session only.
func (r *Result) Outbound(session string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Direction != DirectionOut {
			continue
		}
		if session != "" && e.Session != session {
			continue
		}
		out = append(out, e)
	}
	return out
}
