// Package query defines the contract between the core and the external query
// execution backend.
//
// The backend is modeled as one shared, stateful connection that executes
// SQL-like statements. Execute runs a statement that produces no rows (a
// parquet scan that creates a table); Query materializes a columnar result set.
// Both may fail with an engine-level error.
//
// The core never propagates engine failures to clients as a distinct message
// kind. Run applies the degraded-success policy: failures are logged and
// counted, and a well-formed response of the requested shape is returned.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/nodom/internal/value"
)

// Op is the kind of statement a request carries.
type Op string

const (
	// OpScan executes a statement without a result set; it is acknowledged.
	OpScan Op = "ParquetScan"
	// OpQuery executes a statement and returns a result set.
	OpQuery Op = "Query"
)

// ParseOp validates an op name.
func ParseOp(s string) (Op, bool) {
	switch Op(s) {
	case OpScan, OpQuery:
		return Op(s), true
	}
	return "", false
}

// Origin values for Request.Origin.
const (
	// OriginClient marks statements a client submitted directly.
	OriginClient = "client"
	// OriginData marks statements built from the data namespace by a rule.
	OriginData = "data"
)

// Request is a statement to execute on behalf of a session.
//
// QueryID is a caller-assigned correlation token echoed on the response; the
// core does not enforce its uniqueness.
type Request struct {
	Op        Op
	QueryID   string
	Statement string
	Origin    string

	// SessionID addresses the response.
	SessionID string
	// Depth counts how many chained requests precede this one for the same
	// inbound message. Client-submitted requests have depth 0.
	Depth int
}

// Response is the correlated outcome of a Request.
//
// Err is set when the engine failed; it stays server side. Result is nil for
// scans and never nil for queries.
type Response struct {
	Op      Op
	QueryID string
	Result  *ResultSet
	Err     error
}

// Failed reports whether the engine failed and the response is degraded.
func (r Response) Failed() bool {
	return r.Err != nil
}

// Ack acknowledges a statement that produced no result set.
type Ack struct {
	RowsAffected int64
}

// Column is one named, typed column of a result set.
type Column struct {
	Name   string
	Type   string
	Values []value.Value
}

// ResultSet is a materialized, columnar query result.
type ResultSet struct {
	Columns []Column
	Rows    int
}

// EmptyResult returns the zero-column, zero-row result set.
func EmptyResult() *ResultSet {
	return &ResultSet{Columns: []Column{}}
}

// Value renders the result set for the wire and the cache:
//
//	{"names": [...], "types": [...], "rows": n, "columns": [[...], ...]}
func (rs *ResultSet) Value() value.Object {
	if rs == nil {
		rs = EmptyResult()
	}
	names := make(value.Array, len(rs.Columns))
	types := make(value.Array, len(rs.Columns))
	cols := make(value.Array, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = value.String(c.Name)
		types[i] = value.String(c.Type)
		vals := make(value.Array, len(c.Values))
		copy(vals, c.Values)
		cols[i] = vals
	}
	return value.NewObject(
		value.O("names", names),
		value.O("types", types),
		value.O("rows", value.Int(rs.Rows)),
		value.O("columns", cols),
	)
}

// Adapter is the query execution backend.
type Adapter interface {
	Execute(ctx context.Context, statement string) (Ack, error)
	Query(ctx context.Context, statement string) (*ResultSet, error)
	Close() error
}

// EngineError wraps a backend failure with the request it belonged to.
type EngineError struct {
	QueryID   string
	Statement string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error for query %s: %v", e.QueryID, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsEngineError reports whether err is an EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// serialized guards an Adapter with a mutex so interleaved statements never
// reach the backend connection concurrently.
type serialized struct {
	mu sync.Mutex
	a  Adapter
}

// Serialize wraps a so that at most one statement executes at a time.
func Serialize(a Adapter) Adapter {
	if s, ok := a.(*serialized); ok {
		return s
	}
	return &serialized{a: a}
}

func (s *serialized) Execute(ctx context.Context, statement string) (Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Execute(ctx, statement)
}

func (s *serialized) Query(ctx context.Context, statement string) (*ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Query(ctx, statement)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Close()
}
