package rules

import (
	"slices"

	"github.com/roach88/nodom/internal/query"
)

// Event names produced by the server itself.
const (
	EventDataChange  = "DataChange"
	EventScanResult  = "ParquetScanResult"
	EventQueryResult = "QueryResult"
)

// Rule is one entry of the action table.
type Rule struct {
	// Action is the name the rule fires on.
	Action string `json:"action"`

	// Events restricts which events fire the rule. Empty matches any event.
	Events []string `json:"nd_events,omitempty"`

	// Push names a pushable layout widget to show.
	Push string `json:"ui_push,omitempty"`

	// Pop names a layout widget to dismiss.
	Pop string `json:"ui_pop,omitempty"`

	// Chain is the query issued when the rule fires.
	Chain *Chain `json:"db,omitempty"`
}

// Chain describes a chained query. Exactly one of StatementKey and Template
// is set.
type Chain struct {
	Op      query.Op `json:"action"`
	QueryID string   `json:"query_id"`

	// StatementKey names the data key holding the statement text.
	StatementKey string `json:"sql_cname,omitempty"`

	// Template is a statement with ${data.<key>} references.
	Template string `json:"sql,omitempty"`
}

// Matches reports whether r fires for event.
func (r Rule) Matches(event string) bool {
	return len(r.Events) == 0 || slices.Contains(r.Events, event)
}

// DirectiveKind distinguishes push from pop.
type DirectiveKind string

const (
	Push DirectiveKind = "push"
	Pop  DirectiveKind = "pop"
)

// Directive is a UI navigation instruction.
type Directive struct {
	Kind     DirectiveKind
	WidgetID string
}

// Outcome is what firing a rule produces. Directives are ordered push then pop.
type Outcome struct {
	Rule       string
	Directives []Directive
	Query      *query.Request
}

// Empty reports whether nothing fired.
func (o Outcome) Empty() bool {
	return len(o.Directives) == 0 && o.Query == nil
}
