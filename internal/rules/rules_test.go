package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/value"
)

type mapReader value.Object

func (m mapReader) Get(key string) (value.Value, bool) {
	v, ok := m[key]
	return v, ok
}

func depthLayout() value.Value {
	return value.NewArray(
		value.NewObject(
			value.O("rname", value.String("Home")),
			value.O("children", value.NewArray(
				value.NewObject(value.O("rname", value.String("Button")), value.O("cspec", value.NewObject(value.O("text", value.String("Scan"))))),
			)),
		),
		value.NewObject(
			value.O("rname", value.String("DuckParquetLoadingModal")),
			value.O("widget_id", value.String("parquet_loading_modal")),
		),
		value.NewObject(
			value.O("rname", value.String("DepthSummaryModal")),
			value.O("widget_id", value.String("depth_summary_modal")),
		),
	)
}

func depthRules() []Rule {
	return []Rule{
		{
			Action: "Scan",
			Events: []string{"Button"},
			Push:   "parquet_loading_modal",
			Chain:  &Chain{Op: query.OpScan, QueryID: "depth_scan", StatementKey: "scan_sql"},
		},
		{
			Action: "depth_scan",
			Events: []string{EventScanResult},
			Pop:    "DuckParquetLoadingModal",
			Chain:  &Chain{Op: query.OpQuery, QueryID: "depth_summary", StatementKey: "summary_sql"},
		},
		{
			Action: "depth_summary",
			Events: []string{EventQueryResult},
			Chain:  &Chain{Op: query.OpQuery, QueryID: "depth_query", StatementKey: "depth_sql"},
		},
		{
			Action: "Summary",
			Events: []string{"Button"},
			Push:   "depth_summary_modal",
		},
	}
}

func depthData() mapReader {
	return mapReader{
		"scan_sql":     value.String("CREATE TABLE depth AS SELECT 1"),
		"summary_sql":  value.String("SUMMARIZE SELECT * FROM depth"),
		"depth_sql":    value.String("SELECT * FROM depth LIMIT 10 OFFSET 0"),
		"depth_offset": value.Int(0),
	}
}

func depthTargets() Targets {
	keys := make([]string, 0)
	for k := range depthData() {
		keys = append(keys, k)
	}
	return TargetsFromLayout(depthLayout(), keys)
}

func TestTargetsFromLayout(t *testing.T) {
	tg := depthTargets()
	assert.ElementsMatch(t, []string{"parquet_loading_modal", "depth_summary_modal"}, tg.Pushable)
	assert.ElementsMatch(t, []string{"Home", "Button", "DuckParquetLoadingModal", "DepthSummaryModal"}, tg.Named)
}

func TestNewTable_DepthWorkflow(t *testing.T) {
	table, err := NewTable(depthRules(), depthTargets())
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, []string{"Scan", "Summary", "depth_scan", "depth_summary"}, table.Actions())
}

func TestEvaluate_ScanButton(t *testing.T) {
	table, err := NewTable(depthRules(), depthTargets())
	require.NoError(t, err)

	out, err := table.Evaluate("Scan", "Button", depthData())
	require.NoError(t, err)

	assert.Equal(t, []Directive{{Kind: Push, WidgetID: "parquet_loading_modal"}}, out.Directives)
	require.NotNil(t, out.Query)
	assert.Equal(t, query.Request{
		Op:        query.OpScan,
		QueryID:   "depth_scan",
		Statement: "CREATE TABLE depth AS SELECT 1",
		Origin:    query.OriginData,
	}, *out.Query)
}

func TestEvaluate_StateMachine(t *testing.T) {
	table, err := NewTable(depthRules(), depthTargets())
	require.NoError(t, err)
	data := depthData()

	// Scanned: scan ack pops the modal and summarizes.
	out, err := table.Evaluate("depth_scan", EventScanResult, data)
	require.NoError(t, err)
	assert.Equal(t, []Directive{{Kind: Pop, WidgetID: "DuckParquetLoadingModal"}}, out.Directives)
	assert.Equal(t, "depth_summary", out.Query.QueryID)
	assert.Equal(t, query.OpQuery, out.Query.Op)

	// Summarized: summary result issues the detail query.
	out, err = table.Evaluate("depth_summary", EventQueryResult, data)
	require.NoError(t, err)
	assert.Empty(t, out.Directives)
	assert.Equal(t, "depth_query", out.Query.QueryID)
	assert.Equal(t, "SELECT * FROM depth LIMIT 10 OFFSET 0", out.Query.Statement)

	// Ready: the detail result fires nothing.
	out, err = table.Evaluate("depth_query", EventQueryResult, data)
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestEvaluate_DuplicateResponseFiresAgain(t *testing.T) {
	table, err := NewTable(depthRules(), depthTargets())
	require.NoError(t, err)

	first, err := table.Evaluate("depth_scan", EventScanResult, depthData())
	require.NoError(t, err)
	second, err := table.Evaluate("depth_scan", EventScanResult, depthData())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotNil(t, second.Query)
}

func TestEvaluate_EventFilter(t *testing.T) {
	table, err := NewTable(depthRules(), depthTargets())
	require.NoError(t, err)

	out, err := table.Evaluate("Scan", "Hover", depthData())
	require.NoError(t, err)
	assert.True(t, out.Empty())

	out, err = table.Evaluate("depth_scan", EventQueryResult, depthData())
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestEvaluate_Template(t *testing.T) {
	rules := []Rule{{
		Action: "Page",
		Chain: &Chain{
			Op:       query.OpQuery,
			QueryID:  "depth_query",
			Template: "SELECT * FROM depth LIMIT 10 OFFSET ${data.depth_offset}",
		},
	}}
	table, err := NewTable(rules, depthTargets())
	require.NoError(t, err)

	data := depthData()
	data["depth_offset"] = value.Int(20)
	out, err := table.Evaluate("Page", "Button", data)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM depth LIMIT 10 OFFSET 20", out.Query.Statement)
}

func TestEvaluate_StatementKeyWrongType(t *testing.T) {
	table, err := NewTable(depthRules(), depthTargets())
	require.NoError(t, err)

	data := depthData()
	data["scan_sql"] = value.Int(3)
	out, err := table.Evaluate("Scan", "Button", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `statement key "scan_sql" holds int`)
	assert.Nil(t, out.Query)
	assert.Len(t, out.Directives, 1)
}

func TestEvaluate_NilTable(t *testing.T) {
	var table *Table
	out, err := table.Evaluate("Scan", "Button", depthData())
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		code string
	}{
		{"empty action", Rule{Action: " "}, ErrEmptyAction},
		{"unknown push", Rule{Action: "a", Push: "nope"}, ErrUnknownPushTarget},
		{"unknown pop", Rule{Action: "a", Pop: "nope"}, ErrUnknownPopTarget},
		{"bad op", Rule{Action: "a", Chain: &Chain{Op: "Drop", QueryID: "q", StatementKey: "scan_sql"}}, ErrInvalidChainOp},
		{"no query id", Rule{Action: "a", Chain: &Chain{Op: query.OpQuery, StatementKey: "scan_sql"}}, ErrMissingQueryID},
		{"no statement", Rule{Action: "a", Chain: &Chain{Op: query.OpQuery, QueryID: "q"}}, ErrStatementSource},
		{"two statements", Rule{Action: "a", Chain: &Chain{Op: query.OpQuery, QueryID: "q", StatementKey: "scan_sql", Template: "x"}}, ErrStatementSource},
		{"unknown cname", Rule{Action: "a", Chain: &Chain{Op: query.OpQuery, QueryID: "q", StatementKey: "missing"}}, ErrUnknownDataKey},
		{"unknown template ref", Rule{Action: "a", Chain: &Chain{Op: query.OpQuery, QueryID: "q", Template: "SELECT ${data.missing}"}}, ErrUnknownDataKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate([]Rule{tt.rule}, depthTargets())
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)

			_, err := NewTable([]Rule{tt.rule}, depthTargets())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestValidate_OverlappingEvents(t *testing.T) {
	rules := []Rule{
		{Action: "Scan", Events: []string{"Button", "Key"}, Push: "parquet_loading_modal"},
		{Action: "Scan", Events: []string{"Key"}, Push: "depth_summary_modal"},
		{Action: "Scan", Events: []string{"Hover"}, Push: "depth_summary_modal"},
	}
	errs := Validate(rules, depthTargets())
	require.Len(t, errs, 1)
	assert.Equal(t, ErrOverlappingEvents, errs[0].Code)
	assert.Contains(t, errs[0].Message, `"Key"`)
}

func TestValidate_AllErrorsReported(t *testing.T) {
	rules := []Rule{
		{Action: "a", Push: "nope"},
		{Action: "b", Pop: "nope"},
	}
	errs := Validate(rules, depthTargets())
	assert.Len(t, errs, 2)
}
