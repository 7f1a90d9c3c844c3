// Package service holds the built-in derived-change extensions.
//
// After a client's data change is applied and confirmed, the engine asks the
// configured Deriver for further updates. Updates are applied in order, each
// announced to the client as a DataChange after the confirmation.
package service

import (
	"fmt"
	"io/fs"
	"sort"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/value"
)

// Update sets one data key as a consequence of another change.
type Update struct {
	Key   string
	Value value.Value
}

// Data is the read-only data namespace a Deriver sees.
type Data interface {
	Get(key string) (value.Value, bool)
}

// Deriver computes derived updates for an accepted client change. The view
// already reflects the change.
type Deriver interface {
	Derive(change cache.Change, data Data) ([]Update, error)
}

// None derives nothing.
type None struct{}

func (None) Derive(cache.Change, Data) ([]Update, error) { return nil, nil }

// Options configures built-in services.
type Options struct {
	// ParquetFS lists the files the depth service may scan.
	ParquetFS fs.FS
	// ParquetURL is the base URL the files are served under.
	ParquetURL string
}

// Names lists the built-in services.
func Names() []string {
	names := []string{NameAddition, NameDepth}
	sort.Strings(names)
	return names
}

// New returns the built-in service called name. The empty name selects None.
func New(name string, opts Options) (Deriver, error) {
	switch name {
	case "":
		return None{}, nil
	case NameAddition:
		return Addition{}, nil
	case NameDepth:
		return NewDepth(opts.ParquetFS, opts.ParquetURL), nil
	}
	return nil, fmt.Errorf("unknown service %q", name)
}
