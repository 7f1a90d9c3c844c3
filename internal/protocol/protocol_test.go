package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/value"
)

func TestDecode_Kinds(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Inbound
	}{
		{
			name: "data change",
			in:   `{"nd_type":"DataChange","cache_key":"op1","new_value":7,"old_value":2}`,
			want: DataChange{Key: "op1", NewValue: value.Int(7), OldValue: value.Int(2)},
		},
		{
			name: "data change without old value",
			in:   `{"nd_type":"DataChange","cache_key":"op1","new_value":null}`,
			want: DataChange{Key: "op1", NewValue: value.Null{}},
		},
		{
			name: "cache request",
			in:   `{"nd_type":"CacheRequest","cache_key":"layout"}`,
			want: CacheRequest{Key: "layout"},
		},
		{
			name: "cache request with namespace",
			in:   `{"nd_type":"CacheRequest","cache_key":"op1","namespace":"data"}`,
			want: CacheRequest{Key: "op1", Namespace: "data"},
		},
		{
			name: "scan",
			in:   `{"nd_type":"ParquetScan","sql":"CREATE TABLE t (a)","query_id":"depth_scan"}`,
			want: QueryOp{Op: query.OpScan, QueryID: "depth_scan", Statement: "CREATE TABLE t (a)"},
		},
		{
			name: "query",
			in:   `{"nd_type":"Query","sql":"SELECT 1"}`,
			want: QueryOp{Op: query.OpQuery, Statement: "SELECT 1"},
		},
		{
			name: "duck op",
			in:   `{"nd_type":"DuckOp","sql":"SELECT 2","query_id":"x"}`,
			want: DuckOp{QueryID: "x", Statement: "SELECT 2"},
		},
		{
			name: "action",
			in:   `{"nd_type":"Action","action":"Scan","nd_event":"Button"}`,
			want: Action{Action: "Scan", Event: "Button"},
		},
		{
			name: "client scan result",
			in:   `{"nd_type":"ParquetScanResult","query_id":"depth_scan"}`,
			want: QueryReport{Op: query.OpScan, QueryID: "depth_scan"},
		},
		{
			name: "client query result",
			in:   `{"nd_type":"QueryResult","query_id":"q","result":{"rows":0}}`,
			want: QueryReport{Op: query.OpQuery, QueryID: "q", Result: value.NewObject(value.O("rows", value.Int(0)))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	got, err := Decode([]byte(`{"nd_type":"Teleport","where":"moon"}`))
	require.NoError(t, err)

	u, ok := got.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "Teleport", u.Kind())
	assert.Equal(t, value.String("moon"), u.Raw["where"])
}

func TestDecode_MissingKindIsUnknown(t *testing.T) {
	got, err := Decode([]byte(`{"cache_key":"op1"}`))
	require.NoError(t, err)
	assert.Equal(t, "", got.Kind())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"not json", `{"nd_type":`, "decode message:"},
		{"not object", `[1,2]`, "expected JSON object, got array"},
		{"missing key", `{"nd_type":"DataChange","new_value":1}`, "decode DataChange: field cache_key: missing"},
		{"missing new value", `{"nd_type":"DataChange","cache_key":"a"}`, "field new_value: missing"},
		{"wrong type", `{"nd_type":"Query","sql":5}`, "field sql: expected string, got int"},
		{"bad query id", `{"nd_type":"Query","sql":"x","query_id":[]}`, "field query_id: expected string, got array"},
		{"report without id", `{"nd_type":"QueryResult"}`, "field query_id: missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncode_Outbound(t *testing.T) {
	rs := value.NewObject(value.O("rows", value.Int(1)))
	tests := []struct {
		name string
		msg  Outbound
		want string
	}{
		{
			name: "confirmation",
			msg:  ChangeConfirmed{Key: "op1", OldValue: value.Int(2), NewValue: value.Int(7)},
			want: `{"cache_key":"op1","new_value":7,"nd_type":"DataChangeConfirmed","old_value":2}`,
		},
		{
			name: "derived change",
			msg:  Change{Key: "op1_plus_op2", OldValue: value.Int(5), NewValue: value.Int(10)},
			want: `{"cache_key":"op1_plus_op2","new_value":10,"nd_type":"DataChange","old_value":5}`,
		},
		{
			name: "bad key response",
			msg:  CacheResponse{Key: "nope", Error: BadKey},
			want: `{"cache_key":"nope","error":"bad key","nd_type":"CacheResponse","value":null}`,
		},
		{
			name: "read response",
			msg:  CacheResponse{Key: "op1", Namespace: "data", Value: value.Int(7)},
			want: `{"cache_key":"op1","namespace":"data","nd_type":"CacheResponse","value":7}`,
		},
		{
			name: "scan ack",
			msg:  ScanResult{QueryID: "depth_scan"},
			want: `{"nd_type":"ParquetScanResult","query_id":"depth_scan"}`,
		},
		{
			name: "query result",
			msg:  QueryResult{QueryID: "q", Result: rs},
			want: `{"nd_type":"QueryResult","query_id":"q","result":{"rows":1}}`,
		},
		{
			name: "duck op uuid",
			msg:  DuckOpUUID{SessionID: "s-1", QueryID: "x"},
			want: `{"nd_type":"DuckOpUUID","query_id":"x","uuid":"s-1"}`,
		},
		{
			name: "instance",
			msg:  DuckInstance{SessionID: "s-1"},
			want: `{"nd_type":"DuckInstance","uuid":"s-1"}`,
		},
		{
			name: "push",
			msg:  UIPush{WidgetID: "parquet_loading_modal"},
			want: `{"nd_type":"UIPush","widget_id":"parquet_loading_modal"}`,
		},
		{
			name: "pop",
			msg:  UIPop{WidgetID: "DuckParquetLoadingModal"},
			want: `{"nd_type":"UIPop","widget_id":"DuckParquetLoadingModal"}`,
		},
		{
			name: "error",
			msg:  Error{Type: "Teleport", Message: `unrecognized message kind "Teleport"`},
			want: `{"error":"unrecognized message kind \"Teleport\"","for_type":"Teleport","nd_type":"Error"}`,
		},
		{
			name: "error with key",
			msg:  Error{Type: "DataChange", Key: "op9", Message: BadKey},
			want: `{"cache_key":"op9","error":"bad key","for_type":"DataChange","nd_type":"Error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestUnrecognizedKindError(t *testing.T) {
	err := error(&UnrecognizedKindError{Kind: "Teleport"})
	assert.True(t, IsUnrecognizedKind(err))
	assert.False(t, IsDecodeError(err))
	assert.Equal(t, `unrecognized message kind "Teleport"`, err.Error())
}
