// Package compiler turns a CUE service description into the typed
// configuration the server runs on.
//
// A description has four top-level fields:
//
//	service: "addition"            // built-in derived-change extension, optional
//	layout:  [...]                 // write-once widget tree
//	data:    {...}                 // initial data namespace
//	actions: {Scan: {nd_events: ["Button"], db: {...}}}
//
// An action may also map to a list of rules with disjoint nd_events.
package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/rules"
	"github.com/roach88/nodom/internal/service"
	"github.com/roach88/nodom/internal/value"
)

// Config is a compiled service description.
type Config struct {
	Service string
	Layout  value.Value
	Data    value.Object
	Rules   []rules.Rule
}

// Targets returns what the rules may refer to in this config.
func (c *Config) Targets() rules.Targets {
	return rules.TargetsFromLayout(c.Layout, c.Data.SortedKeys())
}

// Table validates the rules against the layout and data and builds the rule
// table. Validation problems are returned together.
func (c *Config) Table() (*rules.Table, error) {
	return rules.NewTable(c.Rules, c.Targets())
}

// Compile reads a service description from the root CUE value v.
func Compile(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}

	cfg := &Config{Layout: value.Array{}, Data: value.Object{}}

	if sv := v.LookupPath(cue.ParsePath("service")); sv.Exists() {
		name, err := sv.String()
		if err != nil {
			return nil, formatCUEError("service", err)
		}
		if name != "" && !slices.Contains(service.Names(), name) {
			return nil, &CompileError{
				Field:   "service",
				Message: fmt.Sprintf("unknown service %q (known: %v)", name, service.Names()),
				Pos:     sv.Pos(),
			}
		}
		cfg.Service = name
	}

	if lv := v.LookupPath(cue.ParsePath("layout")); lv.Exists() {
		layout, err := toValue("layout", lv)
		if err != nil {
			return nil, err
		}
		cfg.Layout = layout
	}

	if dv := v.LookupPath(cue.ParsePath("data")); dv.Exists() {
		data, err := toValue("data", dv)
		if err != nil {
			return nil, err
		}
		obj, ok := data.(value.Object)
		if !ok {
			return nil, &CompileError{
				Field:   "data",
				Message: "data must be a struct, got " + value.Kind(data),
				Pos:     dv.Pos(),
			}
		}
		cfg.Data = obj
	}

	var err error
	cfg.Rules, err = parseActions(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseActions extracts the action table.
func parseActions(v cue.Value) ([]rules.Rule, error) {
	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if !actionsVal.Exists() {
		return nil, nil
	}

	iter, err := actionsVal.Fields()
	if err != nil {
		return nil, formatCUEError("actions", err)
	}

	var out []rules.Rule
	for iter.Next() {
		name := iter.Label()
		av := iter.Value()
		field := "actions." + name

		if av.IncompleteKind() == cue.ListKind {
			list, err := av.List()
			if err != nil {
				return nil, formatCUEError(field, err)
			}
			for i := 0; list.Next(); i++ {
				r, err := parseRule(name, fmt.Sprintf("%s[%d]", field, i), list.Value())
				if err != nil {
					return nil, err
				}
				out = append(out, r)
			}
			continue
		}

		r, err := parseRule(name, field, av)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRule(name, field string, v cue.Value) (rules.Rule, error) {
	r := rules.Rule{Action: name}

	if ev := v.LookupPath(cue.ParsePath("nd_events")); ev.Exists() {
		events, err := stringList(field+".nd_events", ev)
		if err != nil {
			return r, err
		}
		r.Events = events
	}

	var err error
	if r.Push, err = optionalString(field+".ui_push", v, "ui_push"); err != nil {
		return r, err
	}
	if r.Pop, err = optionalString(field+".ui_pop", v, "ui_pop"); err != nil {
		return r, err
	}

	db := v.LookupPath(cue.ParsePath("db"))
	if !db.Exists() {
		return r, nil
	}
	dbField := field + ".db"

	op, err := optionalString(dbField+".action", db, "action")
	if err != nil {
		return r, err
	}
	parsed, ok := query.ParseOp(op)
	if !ok {
		return r, &CompileError{
			Field:   dbField + ".action",
			Message: fmt.Sprintf("%q is not %s or %s", op, query.OpScan, query.OpQuery),
			Pos:     db.Pos(),
		}
	}

	c := &rules.Chain{Op: parsed}
	if c.QueryID, err = optionalString(dbField+".query_id", db, "query_id"); err != nil {
		return r, err
	}
	if c.StatementKey, err = optionalString(dbField+".sql_cname", db, "sql_cname"); err != nil {
		return r, err
	}
	if c.Template, err = optionalString(dbField+".sql", db, "sql"); err != nil {
		return r, err
	}
	r.Chain = c
	return r, nil
}

func optionalString(field string, v cue.Value, name string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(field, err)
	}
	return s, nil
}

func stringList(field string, v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// toValue converts a concrete CUE value into a cache value.
func toValue(field string, v cue.Value) (value.Value, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(field, err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return value.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return value.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return value.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		arr := value.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		obj := value.Object{}
		for iter.Next() {
			key := iter.Label()
			elem, err := toValue(field+"."+key, iter.Value())
			if err != nil {
				return nil, err
			}
			obj[key] = elem
		}
		return obj, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported kind %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}
