package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/value"
)

// Reader is the read-only view of the data namespace rules evaluate against.
type Reader interface {
	Get(key string) (value.Value, bool)
}

// Table is a validated, read-only rule table.
type Table struct {
	byAction map[string][]Rule
	actions  []string
}

// Targets lists what rules may refer to: the data keys and the layout's
// widget names.
type Targets struct {
	DataKeys []string
	// Pushable holds layout widget_id values.
	Pushable []string
	// Named holds layout rname values.
	Named []string
}

// TargetsFromLayout collects pushable widget ids and rnames from a layout
// tree. Any object with a string widget_id or rname contributes, at any depth.
func TargetsFromLayout(layout value.Value, dataKeys []string) Targets {
	t := Targets{DataKeys: dataKeys}
	var walk func(v value.Value)
	walk = func(v value.Value) {
		switch val := v.(type) {
		case value.Array:
			for _, elem := range val {
				walk(elem)
			}
		case value.Object:
			if id, ok := val["widget_id"].(value.String); ok {
				t.Pushable = append(t.Pushable, string(id))
			}
			if name, ok := val["rname"].(value.String); ok {
				t.Named = append(t.Named, string(name))
			}
			for _, k := range val.SortedKeys() {
				walk(val[k])
			}
		}
	}
	walk(layout)
	return t
}

// NewTable validates rules against targets and builds a table. All problems
// are reported together.
func NewTable(rules []Rule, targets Targets) (*Table, error) {
	errs := Validate(rules, targets)
	if len(errs) > 0 {
		joined := make([]error, len(errs))
		for i := range errs {
			joined[i] = errs[i]
		}
		return nil, errors.Join(joined...)
	}

	t := &Table{byAction: make(map[string][]Rule)}
	for _, r := range rules {
		if _, ok := t.byAction[r.Action]; !ok {
			t.actions = append(t.actions, r.Action)
		}
		t.byAction[r.Action] = append(t.byAction[r.Action], r)
	}
	sort.Strings(t.actions)
	return t, nil
}

// Actions returns the action names in sorted order.
func (t *Table) Actions() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.actions))
	copy(out, t.actions)
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, rs := range t.byAction {
		n += len(rs)
	}
	return n
}

// Lookup returns the rule that fires for action and event. At most one rule
// per action matches a given event; the first one in table order wins.
func (t *Table) Lookup(action, event string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	for _, r := range t.byAction[action] {
		if r.Matches(event) {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate fires the rule for action and event, if any. The returned request
// has OriginData and no session; the caller fills in addressing.
//
// An error means the rule matched but its statement could not be built; the
// directives are still returned.
func (t *Table) Evaluate(action, event string, data Reader) (Outcome, error) {
	r, ok := t.Lookup(action, event)
	if !ok {
		return Outcome{}, nil
	}

	out := Outcome{Rule: r.Action}
	if r.Push != "" {
		out.Directives = append(out.Directives, Directive{Kind: Push, WidgetID: r.Push})
	}
	if r.Pop != "" {
		out.Directives = append(out.Directives, Directive{Kind: Pop, WidgetID: r.Pop})
	}
	if r.Chain == nil {
		return out, nil
	}

	stmt, err := statement(r.Chain, data)
	if err != nil {
		return out, fmt.Errorf("rule %s: %w", r.Action, err)
	}
	out.Query = &query.Request{
		Op:        r.Chain.Op,
		QueryID:   r.Chain.QueryID,
		Statement: stmt,
		Origin:    query.OriginData,
	}
	return out, nil
}

func statement(c *Chain, data Reader) (string, error) {
	if c.StatementKey != "" {
		v, ok := data.Get(c.StatementKey)
		if !ok {
			return "", fmt.Errorf("statement key %q not in data", c.StatementKey)
		}
		s, ok := v.(value.String)
		if !ok {
			return "", fmt.Errorf("statement key %q holds %s, want string", c.StatementKey, value.Kind(v))
		}
		return string(s), nil
	}
	return Render(c.Template, data.Get)
}
