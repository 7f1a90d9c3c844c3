package protocol

import (
	"github.com/roach88/nodom/internal/value"
)

// Outbound is a message the server sends to a session.
type Outbound interface {
	Kind() string
	Object() value.Object
}

// Encode renders m as canonical JSON.
func Encode(m Outbound) ([]byte, error) {
	return value.Marshal(m.Object())
}

// ChangeConfirmed confirms a client's DataChange.
type ChangeConfirmed struct {
	Key      string
	OldValue value.Value
	NewValue value.Value
}

// Change announces a server-side change to a data key.
type Change struct {
	Key      string
	OldValue value.Value
	NewValue value.Value
}

// CacheResponse answers a CacheRequest. Error is "bad key" when the key does
// not exist, in which case Value is null.
type CacheResponse struct {
	Key       string
	Namespace string
	Value     value.Value
	Error     string
}

// BadKey is the error text of a CacheResponse for a missing key.
const BadKey = "bad key"

// ScanResult acknowledges a ParquetScan.
type ScanResult struct {
	QueryID string
}

// QueryResult carries a result set.
type QueryResult struct {
	QueryID string
	Result  value.Value
}

// DuckOpUUID acknowledges a journaled DuckOp and tells the client its
// session id, so it can address its journal.
type DuckOpUUID struct {
	SessionID string
	QueryID   string
}

// DuckInstance is sent once when a session connects.
type DuckInstance struct {
	SessionID string
}

// UIPush asks the client to show a pushable widget.
type UIPush struct {
	WidgetID string
}

// UIPop asks the client to dismiss a widget.
type UIPop struct {
	WidgetID string
}

// Error reports that one inbound message could not be processed. Key names
// the cache key involved, if any.
type Error struct {
	Type    string
	Key     string
	Message string
}

func (ChangeConfirmed) Kind() string { return KindDataChangeConfirmed }
func (Change) Kind() string          { return KindDataChange }
func (CacheResponse) Kind() string   { return KindCacheResponse }
func (ScanResult) Kind() string      { return KindParquetScanResult }
func (QueryResult) Kind() string     { return KindQueryResult }
func (DuckOpUUID) Kind() string      { return KindDuckOpUUID }
func (DuckInstance) Kind() string    { return KindDuckInstance }
func (UIPush) Kind() string          { return KindUIPush }
func (UIPop) Kind() string           { return KindUIPop }
func (Error) Kind() string           { return KindError }

func (m ChangeConfirmed) Object() value.Object {
	return changeObject(m.Kind(), m.Key, m.OldValue, m.NewValue)
}

func (m Change) Object() value.Object {
	return changeObject(m.Kind(), m.Key, m.OldValue, m.NewValue)
}

func changeObject(kind, key string, oldV, newV value.Value) value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(kind)),
		value.O("cache_key", value.String(key)),
		value.O("old_value", orNull(oldV)),
		value.O("new_value", orNull(newV)),
	)
}

func (m CacheResponse) Object() value.Object {
	obj := value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("cache_key", value.String(m.Key)),
		value.O("value", orNull(m.Value)),
	)
	if m.Namespace != "" {
		obj["namespace"] = value.String(m.Namespace)
	}
	if m.Error != "" {
		obj["error"] = value.String(m.Error)
	}
	return obj
}

func (m ScanResult) Object() value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("query_id", value.String(m.QueryID)),
	)
}

func (m QueryResult) Object() value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("query_id", value.String(m.QueryID)),
		value.O("result", orNull(m.Result)),
	)
}

func (m DuckOpUUID) Object() value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("uuid", value.String(m.SessionID)),
		value.O("query_id", value.String(m.QueryID)),
	)
}

func (m DuckInstance) Object() value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("uuid", value.String(m.SessionID)),
	)
}

func (m UIPush) Object() value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("widget_id", value.String(m.WidgetID)),
	)
}

func (m UIPop) Object() value.Object {
	return value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("widget_id", value.String(m.WidgetID)),
	)
}

func (m Error) Object() value.Object {
	obj := value.NewObject(
		value.O("nd_type", value.String(m.Kind())),
		value.O("error", value.String(m.Message)),
		value.O("for_type", value.String(m.Type)),
	)
	if m.Key != "" {
		obj["cache_key"] = value.String(m.Key)
	}
	return obj
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}
