package protocol

import (
	"errors"
	"fmt"

	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/value"
)

// Wire kind names.
const (
	KindDataChange          = "DataChange"
	KindDataChangeConfirmed = "DataChangeConfirmed"
	KindCacheRequest        = "CacheRequest"
	KindCacheResponse       = "CacheResponse"
	KindParquetScan         = "ParquetScan"
	KindParquetScanResult   = "ParquetScanResult"
	KindQuery               = "Query"
	KindQueryResult         = "QueryResult"
	KindDuckOp              = "DuckOp"
	KindDuckOpUUID          = "DuckOpUUID"
	KindDuckInstance        = "DuckInstance"
	KindAction              = "Action"
	KindUIPush              = "UIPush"
	KindUIPop               = "UIPop"
	KindError               = "Error"
)

// Inbound is a decoded client message.
type Inbound interface {
	Kind() string
	inbound()
}

// DataChange asks to set a data key.
type DataChange struct {
	Key      string
	NewValue value.Value
	// OldValue is the client's view of the prior value, when supplied. It is
	// informational; the cache's value wins.
	OldValue value.Value
}

// CacheRequest reads one key. An empty Namespace means data, except that the
// keys "layout" and "data" select a whole namespace.
type CacheRequest struct {
	Key       string
	Namespace string
}

// QueryOp submits a statement to the shared query backend.
type QueryOp struct {
	Op        query.Op
	QueryID   string
	Statement string
}

// DuckOp journals a statement a client runs on its own engine.
type DuckOp struct {
	QueryID   string
	Statement string
}

// Action reports a UI event, such as a button press.
type Action struct {
	Action string
	Event  string
}

// QueryReport is a query response produced by a client-hosted engine.
type QueryReport struct {
	Op      query.Op
	QueryID string
	Result  value.Value
}

// Unknown carries a message whose kind is not recognized.
type Unknown struct {
	Type string
	Raw  value.Object
}

func (DataChange) Kind() string   { return KindDataChange }
func (CacheRequest) Kind() string { return KindCacheRequest }
func (m QueryOp) Kind() string    { return string(m.Op) }
func (DuckOp) Kind() string       { return KindDuckOp }
func (Action) Kind() string       { return KindAction }
func (m QueryReport) Kind() string {
	if m.Op == query.OpScan {
		return KindParquetScanResult
	}
	return KindQueryResult
}
func (m Unknown) Kind() string { return m.Type }

func (DataChange) inbound()   {}
func (CacheRequest) inbound() {}
func (QueryOp) inbound()      {}
func (DuckOp) inbound()       {}
func (Action) inbound()       {}
func (QueryReport) inbound()  {}
func (Unknown) inbound()      {}

// DecodeError reports a message that is not a JSON object or lacks a field
// its kind requires.
type DecodeError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("decode %s: field %s: %s", e.Kind, e.Field, e.Reason)
	case e.Kind != "":
		return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
	}
	return "decode message: " + e.Reason
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// UnrecognizedKindError reports an inbound kind with no handler.
type UnrecognizedKindError struct {
	Kind string
}

func (e *UnrecognizedKindError) Error() string {
	return fmt.Sprintf("unrecognized message kind %q", e.Kind)
}

// IsUnrecognizedKind reports whether err is an UnrecognizedKindError.
func IsUnrecognizedKind(err error) bool {
	var ue *UnrecognizedKindError
	return errors.As(err, &ue)
}

// Decode parses one inbound message.
func Decode(data []byte) (Inbound, error) {
	v, err := value.Decode(data)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, &DecodeError{Reason: "expected JSON object, got " + value.Kind(v)}
	}
	return FromObject(obj)
}

// FromObject converts an already parsed message.
func FromObject(obj value.Object) (Inbound, error) {
	kind, _ := obj["nd_type"].(value.String)
	f := fields{kind: string(kind), obj: obj}

	switch string(kind) {
	case KindDataChange:
		key, err := f.requireString("cache_key")
		if err != nil {
			return nil, err
		}
		nv, ok := obj["new_value"]
		if !ok {
			return nil, &DecodeError{Kind: f.kind, Field: "new_value", Reason: "missing"}
		}
		return DataChange{Key: key, NewValue: nv, OldValue: f.optional("old_value")}, nil

	case KindCacheRequest:
		key, err := f.requireString("cache_key")
		if err != nil {
			return nil, err
		}
		ns, err := f.optionalString("namespace")
		if err != nil {
			return nil, err
		}
		return CacheRequest{Key: key, Namespace: ns}, nil

	case KindParquetScan, KindQuery:
		stmt, err := f.requireString("sql")
		if err != nil {
			return nil, err
		}
		qid, err := f.optionalString("query_id")
		if err != nil {
			return nil, err
		}
		return QueryOp{Op: query.Op(kind), QueryID: qid, Statement: stmt}, nil

	case KindDuckOp:
		stmt, err := f.requireString("sql")
		if err != nil {
			return nil, err
		}
		qid, err := f.optionalString("query_id")
		if err != nil {
			return nil, err
		}
		return DuckOp{QueryID: qid, Statement: stmt}, nil

	case KindAction:
		action, err := f.requireString("action")
		if err != nil {
			return nil, err
		}
		event, err := f.requireString("nd_event")
		if err != nil {
			return nil, err
		}
		return Action{Action: action, Event: event}, nil

	case KindParquetScanResult, KindQueryResult:
		qid, err := f.requireString("query_id")
		if err != nil {
			return nil, err
		}
		op := query.OpQuery
		if string(kind) == KindParquetScanResult {
			op = query.OpScan
		}
		return QueryReport{Op: op, QueryID: qid, Result: f.optional("result")}, nil
	}

	return Unknown{Type: string(kind), Raw: obj}, nil
}

type fields struct {
	kind string
	obj  value.Object
}

func (f fields) requireString(name string) (string, error) {
	v, ok := f.obj[name]
	if !ok {
		return "", &DecodeError{Kind: f.kind, Field: name, Reason: "missing"}
	}
	s, ok := v.(value.String)
	if !ok {
		return "", &DecodeError{Kind: f.kind, Field: name, Reason: "expected string, got " + value.Kind(v)}
	}
	return string(s), nil
}

func (f fields) optionalString(name string) (string, error) {
	v, ok := f.obj[name]
	if !ok {
		return "", nil
	}
	switch s := v.(type) {
	case value.Null:
		return "", nil
	case value.String:
		return string(s), nil
	}
	return "", &DecodeError{Kind: f.kind, Field: name, Reason: "expected string, got " + value.Kind(v)}
}

func (f fields) optional(name string) value.Value {
	if v, ok := f.obj[name]; ok {
		return v
	}
	return nil
}
