// Package cache holds the authoritative state cache shared by all sessions.
//
// The cache has two namespaces. The layout namespace is populated once at
// startup and never changes. The data namespace is read and written by
// session handlers and derived-change extensions; writes are last-write-wins.
//
// Cache is not safe for concurrent use. It is owned by the engine's
// single-writer loop, and every value handed out is a deep copy so callers
// never hold references into cache internals.
package cache

import (
	"errors"
	"fmt"

	"github.com/roach88/nodom/internal/value"
)

// Namespace selects one of the two cache partitions.
type Namespace string

const (
	// Layout is the write-once namespace describing the client's widget tree.
	Layout Namespace = "layout"
	// Data is the mutable namespace of application state.
	Data Namespace = "data"
)

// ParseNamespace validates a namespace name received from a client.
func ParseNamespace(s string) (Namespace, bool) {
	switch Namespace(s) {
	case Layout, Data:
		return Namespace(s), true
	}
	return "", false
}

// BadKeyError reports a read or write of a namespace/key pair that does not exist.
type BadKeyError struct {
	Namespace Namespace
	Key       string
}

func (e *BadKeyError) Error() string {
	return fmt.Sprintf("bad cache key %s.%s", e.Namespace, e.Key)
}

// IsBadKey reports whether err is a BadKeyError.
func IsBadKey(err error) bool {
	var bk *BadKeyError
	return errors.As(err, &bk)
}

// Change describes one accepted mutation of the data namespace.
type Change struct {
	Key      string
	OldValue value.Value
	NewValue value.Value
}

// Cache is the two-namespace state cache.
type Cache struct {
	layout value.Value
	data   value.Object
}

// New creates a cache. The layout value is frozen here; data is copied so later
// mutation of the caller's map cannot leak in.
func New(layout value.Value, data value.Object) *Cache {
	if layout == nil {
		layout = value.Array{}
	}
	if data == nil {
		data = value.Object{}
	}
	return &Cache{
		layout: value.Clone(layout),
		data:   data.Clone(),
	}
}

// Layout returns a copy of the whole layout namespace.
func (c *Cache) Layout() value.Value {
	return value.Clone(c.layout)
}

// Get returns a copy of the value stored under key in ns.
//
// The layout namespace is usually a list of widgets rather than a mapping; in
// that case only keyed lookups into an object-shaped layout succeed.
func (c *Cache) Get(ns Namespace, key string) (value.Value, error) {
	switch ns {
	case Data:
		v, ok := c.data[key]
		if !ok {
			return nil, &BadKeyError{Namespace: ns, Key: key}
		}
		return value.Clone(v), nil
	case Layout:
		if obj, ok := c.layout.(value.Object); ok {
			if v, ok := obj[key]; ok {
				return value.Clone(v), nil
			}
		}
		return nil, &BadKeyError{Namespace: ns, Key: key}
	default:
		return nil, &BadKeyError{Namespace: ns, Key: key}
	}
}

// Namespace returns a copy of a whole namespace.
func (c *Cache) Namespace(ns Namespace) (value.Value, error) {
	switch ns {
	case Layout:
		return c.Layout(), nil
	case Data:
		return c.data.Clone(), nil
	}
	return nil, &BadKeyError{Namespace: ns}
}

// Has reports whether key exists in the data namespace.
func (c *Cache) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Set writes key in the data namespace and returns the change it made.
// Only existing keys may be written: the data namespace's key set is fixed by
// the service description, so an unknown key is a BadKeyError.
func (c *Cache) Set(key string, v value.Value) (Change, error) {
	old, ok := c.data[key]
	if !ok {
		return Change{}, &BadKeyError{Namespace: Data, Key: key}
	}
	if v == nil {
		v = value.Null{}
	}
	c.data[key] = value.Clone(v)
	return Change{Key: key, OldValue: value.Clone(old), NewValue: value.Clone(v)}, nil
}

// Snapshot serializes a whole namespace to canonical JSON.
func (c *Cache) Snapshot(ns Namespace) ([]byte, error) {
	v, err := c.Namespace(ns)
	if err != nil {
		return nil, err
	}
	b, err := value.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", ns, err)
	}
	return b, nil
}

// View is a read-only view of the data namespace keyed by name alone.
type View struct {
	c *Cache
}

// Data returns a read-only view of the data namespace.
func (c *Cache) Data() View {
	return View{c: c}
}

// Get returns a copy of a data value and whether the key exists.
func (v View) Get(key string) (value.Value, bool) {
	val, ok := v.c.data[key]
	if !ok {
		return nil, false
	}
	return value.Clone(val), true
}
