package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nodom/internal/query"
)

// Validation error codes (E120-E139)
const (
	ErrEmptyAction       = "E120" // action name is required
	ErrUnknownDataKey    = "E121" // statement references a missing data key
	ErrUnknownPushTarget = "E122" // ui_push names no pushable widget
	ErrUnknownPopTarget  = "E123" // ui_pop names no layout widget
	ErrInvalidChainOp    = "E124" // db.action is not ParquetScan or Query
	ErrMissingQueryID    = "E125" // db.query_id is required
	ErrStatementSource   = "E126" // exactly one of sql_cname and sql
	ErrChainCycle        = "E127" // chained query_ids loop
	ErrOverlappingEvents = "E128" // two rules for one action share an event
)

// ValidationError describes one invalid rule.
type ValidationError struct {
	Action  string `json:"action"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] action %q: %s: %s", e.Code, e.Action, e.Field, e.Message)
}

// Validate checks rules against targets and returns every problem found.
func Validate(rules []Rule, targets Targets) []ValidationError {
	var errs []ValidationError

	for _, r := range rules {
		errs = append(errs, validateRule(r, targets)...)
	}
	errs = append(errs, validateOverlaps(rules)...)

	for _, c := range FindCycles(rules, targets.DataKeys) {
		errs = append(errs, ValidationError{
			Action:  c[0],
			Field:   "db.query_id",
			Message: "chained queries loop: " + strings.Join(c, " -> "),
			Code:    ErrChainCycle,
		})
	}
	return errs
}

func validateRule(r Rule, targets Targets) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Action:  r.Action,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if strings.TrimSpace(r.Action) == "" {
		add("action", ErrEmptyAction, "action name is required")
	}
	if r.Push != "" && !slices.Contains(targets.Pushable, r.Push) {
		add("ui_push", ErrUnknownPushTarget, "no layout widget has widget_id %q", r.Push)
	}
	if r.Pop != "" && !slices.Contains(targets.Named, r.Pop) && !slices.Contains(targets.Pushable, r.Pop) {
		add("ui_pop", ErrUnknownPopTarget, "no layout widget is named %q", r.Pop)
	}

	c := r.Chain
	if c == nil {
		return errs
	}
	if _, ok := query.ParseOp(string(c.Op)); !ok {
		add("db.action", ErrInvalidChainOp, "%q is not %s or %s", c.Op, query.OpScan, query.OpQuery)
	}
	if strings.TrimSpace(c.QueryID) == "" {
		add("db.query_id", ErrMissingQueryID, "query_id is required")
	}

	switch {
	case c.StatementKey != "" && c.Template != "":
		add("db", ErrStatementSource, "set sql_cname or sql, not both")
	case c.StatementKey == "" && c.Template == "":
		add("db", ErrStatementSource, "one of sql_cname or sql is required")
	case c.StatementKey != "":
		if !slices.Contains(targets.DataKeys, c.StatementKey) {
			add("db.sql_cname", ErrUnknownDataKey, "data has no key %q", c.StatementKey)
		}
	default:
		for _, key := range References(c.Template) {
			if !slices.Contains(targets.DataKeys, key) {
				add("db.sql", ErrUnknownDataKey, "data has no key %q", key)
			}
		}
	}
	return errs
}

// validateOverlaps rejects two rules for the same action that could both
// fire for one event.
func validateOverlaps(rules []Rule) []ValidationError {
	var errs []ValidationError
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if a.Action != b.Action {
				continue
			}
			if ev, ok := overlap(a.Events, b.Events); ok {
				errs = append(errs, ValidationError{
					Action:  a.Action,
					Field:   "nd_events",
					Message: fmt.Sprintf("more than one rule fires for event %q", ev),
					Code:    ErrOverlappingEvents,
				})
			}
		}
	}
	return errs
}

func overlap(a, b []string) (string, bool) {
	switch {
	case len(a) == 0 && len(b) == 0:
		return "*", true
	case len(a) == 0:
		return b[0], true
	case len(b) == 0:
		return a[0], true
	}
	for _, ev := range a {
		if slices.Contains(b, ev) {
			return ev, true
		}
	}
	return "", false
}
