package harness

import (
	"context"
	"fmt"
	"testing/fstest"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/compiler"
	"github.com/roach88/nodom/internal/engine"
	"github.com/roach88/nodom/internal/journal"
	"github.com/roach88/nodom/internal/query/sqlite"
	"github.com/roach88/nodom/internal/service"
	"github.com/roach88/nodom/internal/value"
)

// Run executes a scenario against a fresh dispatcher and returns the result.
//
// Each scenario gets its own in-memory SQLite engine, cache and journal.
// The returned error is for setup problems; failed expectations are
// reported in Result.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := compiler.Load(scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("invalid action table: %w", err)
	}

	files := fstest.MapFS{}
	for _, name := range scenario.ParquetFiles {
		files[name] = &fstest.MapFile{}
	}
	deriver, err := service.New(cfg.Service, service.Options{ParquetFS: files})
	if err != nil {
		return nil, err
	}

	adapter, err := sqlite.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open query engine: %w", err)
	}
	defer adapter.Close()

	c := cache.New(cfg.Layout, cfg.Data)
	j := journal.New()
	d := engine.NewDispatcher(c, j, engine.WithRules(table), engine.WithDeriver(deriver))

	clock := engine.NewClock()
	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Flow {
		raw, in, err := stepInput(step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, TraceEvent{
			Seq:       clock.Next(),
			Direction: DirectionIn,
			Session:   step.Session,
			Message:   in,
		})

		var out []value.Value
		for _, del := range d.SettleRaw(ctx, adapter, step.Session, raw) {
			msg := del.Message.Object()
			out = append(out, msg)
			result.Trace = append(result.Trace, TraceEvent{
				Seq:       clock.Next(),
				Direction: DirectionOut,
				Session:   del.SessionID,
				Message:   msg,
			})
		}

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, out) {
				result.AddError(fmt.Sprintf("flow[%d]: %s", i, msg))
			}
		}
	}

	data, err := c.Namespace(cache.Data)
	if err != nil {
		return nil, err
	}
	result.Data = data.(value.Object)
	for _, sid := range scenario.Sessions {
		result.Journals[sid] = j.ReadAll(sid)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// stepInput returns the bytes to send and the value recorded in the trace.
func stepInput(step Step) ([]byte, value.Value, error) {
	if step.Raw != "" {
		return []byte(step.Raw), value.String(step.Raw), nil
	}
	v, err := value.From(step.Send)
	if err != nil {
		return nil, nil, err
	}
	raw, err := value.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return raw, v, nil
}

func checkExpect(expect []map[string]any, out []value.Value) []string {
	var errs []string
	if len(expect) != len(out) {
		errs = append(errs, fmt.Sprintf("expected %d messages, got %d: %s", len(expect), len(out), render(value.Array(out))))
	}
	for i := 0; i < len(expect) && i < len(out); i++ {
		want, err := value.From(expect[i])
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect[%d]: %v", i, err))
			continue
		}
		if !matchSubset(out[i], want) {
			errs = append(errs, fmt.Sprintf("message %d: want fields %s, got %s", i, render(want), render(out[i])))
		}
	}
	return errs
}
