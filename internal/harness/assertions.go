package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nodom/internal/value"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Direction, event.Session, render(event.Message))
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failures.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result, a)
		case AssertTraceCount:
			err = assertTraceCount(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		case AssertJournal:
			err = assertJournal(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertTraceContains(result *Result, a Assertion) error {
	want, err := value.From(a.Message)
	if err != nil {
		return err
	}
	trace := result.Outbound(a.Session)
	for _, e := range trace {
		if matchSubset(e.Message, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "a message matching " + render(want),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks the kinds appear in order, not necessarily
// adjacent.
func assertTraceOrder(result *Result, a Assertion) error {
	trace := result.Outbound(a.Session)
	next := 0
	for _, e := range trace {
		if next < len(a.Kinds) && e.Kind() == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("kinds in order %v", a.Kinds),
		Actual:   fmt.Sprintf("only %v found in order", a.Kinds[:next]),
		Trace:    trace,
	}
}

func assertTraceCount(result *Result, a Assertion) error {
	want, err := value.From(a.Message)
	if err != nil {
		return err
	}
	trace := result.Outbound(a.Session)
	count := 0
	for _, e := range trace {
		if matchSubset(e.Message, want) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d messages matching %s", a.Count, render(want)),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    trace,
	}
}

func assertFinalState(result *Result, a Assertion) error {
	want, err := value.From(a.Value)
	if err != nil {
		return err
	}
	got, ok := result.Data[a.Key]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", a.Key, render(want)),
			Actual:   "no such key",
		}
	}
	if !value.Equal(got, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", a.Key, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

func assertJournal(result *Result, a Assertion) error {
	got := result.Journals[a.Session]
	if slices.Equal(got, a.Statements) || (len(got) == 0 && len(a.Statements) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertJournal,
		Expected: fmt.Sprintf("%s journal %q", a.Session, a.Statements),
		Actual:   fmt.Sprintf("%q", got),
	}
}

// matchSubset reports whether every field of want appears in got with an
// equal value, recursing into objects. Arrays and scalars compare exactly.
func matchSubset(got, want value.Value) bool {
	wantObj, ok := want.(value.Object)
	if !ok {
		return value.Equal(got, want)
	}
	gotObj, ok := got.(value.Object)
	if !ok {
		return false
	}
	for k, wv := range wantObj {
		gv, ok := gotObj[k]
		if !ok || !matchSubset(gv, wv) {
			return false
		}
	}
	return true
}

func render(v value.Value) string {
	b, err := value.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
