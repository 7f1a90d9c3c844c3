package query

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roach88/nodom/internal/value"
)

// Cell converts one driver-scanned column value into a Value. Types value.From
// does not know (timestamps, fixed-size byte arrays, driver wrappers) degrade
// to their text form rather than failing the whole result set.
func Cell(v any) value.Value {
	switch val := v.(type) {
	case time.Time:
		return value.String(val.UTC().Format(time.RFC3339Nano))
	case [16]byte:
		return value.String(hex.EncodeToString(val[:]))
	}
	if out, err := value.From(v); err == nil {
		return out
	}
	if s, ok := v.(fmt.Stringer); ok {
		return value.String(s.String())
	}
	return value.String(fmt.Sprint(v))
}

// Builder accumulates scanned rows into a columnar ResultSet.
type Builder struct {
	rs *ResultSet
}

// NewBuilder starts a result set with the given column names and types.
func NewBuilder(names, types []string) *Builder {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Values: []value.Value{}}
		if i < len(types) {
			cols[i].Type = types[i]
		}
	}
	return &Builder{rs: &ResultSet{Columns: cols}}
}

// Append adds one row. Extra cells beyond the column count are ignored.
func (b *Builder) Append(row []any) {
	for i := range b.rs.Columns {
		var cell any
		if i < len(row) {
			cell = row[i]
		}
		b.rs.Columns[i].Values = append(b.rs.Columns[i].Values, Cell(cell))
	}
	b.rs.Rows++
}

// Result returns the accumulated result set. Columns with no declared type
// take the kind of their first non-null value.
func (b *Builder) Result() *ResultSet {
	for i := range b.rs.Columns {
		col := &b.rs.Columns[i]
		if col.Type != "" {
			continue
		}
		col.Type = "null"
		for _, v := range col.Values {
			if _, isNull := v.(value.Null); !isNull {
				col.Type = value.Kind(v)
				break
			}
		}
	}
	return b.rs
}
