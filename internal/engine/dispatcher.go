package engine

import (
	"errors"
	"log/slog"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/journal"
	"github.com/roach88/nodom/internal/metrics"
	"github.com/roach88/nodom/internal/protocol"
	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/rules"
	"github.com/roach88/nodom/internal/service"
	"github.com/roach88/nodom/internal/value"
)

// DefaultMaxChain is the default limit on chained query depth.
const DefaultMaxChain = 16

// Result is what handling one message or completion produces.
//
// Messages go to the originating session in order. Queries are journaled
// already and wait to be run. Err is set when the message failed as a whole;
// it has been logged and Messages still holds the error notice.
type Result struct {
	Messages []protocol.Outbound
	Queries  []query.Request
	Err      error
}

// Dispatcher holds the state handlers act on. It is not safe for concurrent
// use; the Engine loop owns it.
type Dispatcher struct {
	cache    *cache.Cache
	journal  *journal.Journal
	rules    *rules.Table
	deriver  service.Deriver
	maxChain int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxChain sets the chained query depth limit.
func WithMaxChain(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxChain = n
	}
}

// WithDeriver sets the derived-change extension.
func WithDeriver(dv service.Deriver) DispatcherOption {
	return func(d *Dispatcher) {
		if dv != nil {
			d.deriver = dv
		}
	}
}

// WithRules sets the action rule table.
func WithRules(t *rules.Table) DispatcherOption {
	return func(d *Dispatcher) {
		d.rules = t
	}
}

// NewDispatcher creates a dispatcher over c and j.
func NewDispatcher(c *cache.Cache, j *journal.Journal, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cache:    c,
		journal:  j,
		deriver:  service.None{},
		maxChain: DefaultMaxChain,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cache returns the cache. Only the loop goroutine may use it.
func (d *Dispatcher) Cache() *cache.Cache {
	return d.cache
}

// Journal returns the operation journal. It is safe for concurrent reads.
func (d *Dispatcher) Journal() *journal.Journal {
	return d.journal
}

// Dispatch handles one inbound message from session sid.
func (d *Dispatcher) Dispatch(sid string, msg protocol.Inbound) Result {
	label := msg.Kind()
	if _, unknown := msg.(protocol.Unknown); unknown {
		label = "unknown"
	}
	metrics.MessagesTotal.WithLabelValues(label).Inc()

	switch m := msg.(type) {
	case protocol.DataChange:
		return d.onDataChange(sid, m)
	case protocol.CacheRequest:
		return d.onCacheRequest(sid, m)
	case protocol.QueryOp:
		return d.onQueryOp(sid, m)
	case protocol.DuckOp:
		return d.onDuckOp(sid, m)
	case protocol.Action:
		return d.onAction(sid, m)
	case protocol.QueryReport:
		return d.onQueryReport(sid, m)
	default:
		return d.unrecognized(sid, msg)
	}
}

// Reject turns a message that failed to decode into an error notice.
func (d *Dispatcher) Reject(sid string, err error) Result {
	metrics.MessagesTotal.WithLabelValues("undecodable").Inc()
	metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindDecode).Inc()
	slog.Error("message decode failed",
		"session_id", sid,
		"error", err,
	)
	kind := ""
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		kind = de.Kind
	}
	return Result{
		Messages: []protocol.Outbound{protocol.Error{Type: kind, Message: err.Error()}},
		Err:      err,
	}
}

// Complete handles the response to a request this dispatcher issued.
func (d *Dispatcher) Complete(req query.Request, resp query.Response) Result {
	var res Result
	if resp.Op == query.OpScan {
		res.Messages = append(res.Messages, protocol.ScanResult{QueryID: resp.QueryID})
		d.afterResponse(&res, req.SessionID, resp.Op, resp.QueryID, nil, req.Depth)
		return res
	}

	rs := resp.Result.Value()
	res.Messages = append(res.Messages, protocol.QueryResult{QueryID: resp.QueryID, Result: rs})
	d.afterResponse(&res, req.SessionID, resp.Op, resp.QueryID, rs, req.Depth)
	return res
}

// afterResponse stores a query result under <query_id>_result when that key
// exists, then fires the rule for the response. A nil result is not stored.
func (d *Dispatcher) afterResponse(res *Result, sid string, op query.Op, qid string, result value.Value, depth int) {
	if op == query.OpQuery && result != nil {
		key := rules.ResultKey(qid)
		if d.cache.Has(key) {
			if ch, err := d.cache.Set(key, result); err == nil {
				res.Messages = append(res.Messages, protocol.Change{Key: ch.Key, OldValue: ch.OldValue, NewValue: ch.NewValue})
				d.fire(res, sid, ch.Key, rules.EventDataChange, depth+1)
			}
		}
	}

	event := rules.EventQueryResult
	if op == query.OpScan {
		event = rules.EventScanResult
	}
	d.fire(res, sid, qid, event, depth+1)
}

func (d *Dispatcher) onDataChange(sid string, m protocol.DataChange) Result {
	ch, err := d.cache.Set(m.Key, m.NewValue)
	if err != nil {
		return d.badKey(sid, protocol.KindDataChange, m.Key, err)
	}

	slog.Debug("data change applied",
		"session_id", sid,
		"cache_key", m.Key,
	)

	res := Result{Messages: []protocol.Outbound{
		protocol.ChangeConfirmed{Key: ch.Key, OldValue: ch.OldValue, NewValue: ch.NewValue},
	}}
	changes := []cache.Change{ch}

	updates, err := d.deriver.Derive(ch, d.cache.Data())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindDerive).Inc()
		slog.Error("derived change failed",
			"session_id", sid,
			"cache_key", m.Key,
			"error", err,
		)
	}
	for _, u := range updates {
		derived, err := d.cache.Set(u.Key, u.Value)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindBadKey).Inc()
			slog.Warn("derived change dropped",
				"session_id", sid,
				"cache_key", u.Key,
				"error", err,
			)
			continue
		}
		res.Messages = append(res.Messages, protocol.Change{
			Key:      derived.Key,
			OldValue: derived.OldValue,
			NewValue: derived.NewValue,
		})
		changes = append(changes, derived)
	}

	for _, c := range changes {
		d.fire(&res, sid, c.Key, rules.EventDataChange, 1)
	}
	return res
}

func (d *Dispatcher) onCacheRequest(sid string, m protocol.CacheRequest) Result {
	if m.Namespace == "" {
		if ns, ok := cache.ParseNamespace(m.Key); ok {
			v, err := d.cache.Namespace(ns)
			if err != nil {
				return d.badRead(sid, m, err)
			}
			return Result{Messages: []protocol.Outbound{protocol.CacheResponse{Key: m.Key, Value: v}}}
		}
	}

	ns := cache.Data
	if m.Namespace != "" {
		parsed, ok := cache.ParseNamespace(m.Namespace)
		if !ok {
			return d.badRead(sid, m, &cache.BadKeyError{Namespace: cache.Namespace(m.Namespace), Key: m.Key})
		}
		ns = parsed
	}

	v, err := d.cache.Get(ns, m.Key)
	if err != nil {
		return d.badRead(sid, m, err)
	}
	return Result{Messages: []protocol.Outbound{
		protocol.CacheResponse{Key: m.Key, Namespace: m.Namespace, Value: v},
	}}
}

func (d *Dispatcher) onQueryOp(sid string, m protocol.QueryOp) Result {
	var res Result
	d.issue(&res, query.Request{
		Op:        m.Op,
		QueryID:   m.QueryID,
		Statement: m.Statement,
		Origin:    query.OriginClient,
		SessionID: sid,
	})
	return res
}

func (d *Dispatcher) onDuckOp(sid string, m protocol.DuckOp) Result {
	d.journal.Append(sid, protocol.KindDuckOp, m.QueryID, m.Statement)
	slog.Debug("duck op journaled",
		"session_id", sid,
		"query_id", m.QueryID,
	)
	return Result{Messages: []protocol.Outbound{protocol.DuckOpUUID{SessionID: sid, QueryID: m.QueryID}}}
}

func (d *Dispatcher) onAction(sid string, m protocol.Action) Result {
	var res Result
	d.fire(&res, sid, m.Action, m.Event, 1)
	return res
}

// onQueryReport handles a response computed by a client-hosted engine. It
// drives the same result storage and rules as a server-side completion.
func (d *Dispatcher) onQueryReport(sid string, m protocol.QueryReport) Result {
	var res Result
	d.afterResponse(&res, sid, m.Op, m.QueryID, m.Result, 0)
	return res
}

func (d *Dispatcher) unrecognized(sid string, msg protocol.Inbound) Result {
	err := &protocol.UnrecognizedKindError{Kind: msg.Kind()}
	metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindUnrecognized).Inc()
	slog.Error("unrecognized message kind",
		"session_id", sid,
		"nd_type", msg.Kind(),
		"error", err,
	)
	return Result{
		Messages: []protocol.Outbound{protocol.Error{Type: msg.Kind(), Message: err.Error()}},
		Err:      err,
	}
}

// fire evaluates the rule for action and event and appends what it produces.
func (d *Dispatcher) fire(res *Result, sid, action, event string, depth int) {
	out, err := d.rules.Evaluate(action, event, d.cache.Data())
	if err != nil {
		slog.Error("rule evaluation failed",
			"session_id", sid,
			"action", action,
			"event", event,
			"error", err,
		)
	}
	if out.Empty() {
		return
	}

	slog.Debug("rule fired",
		"session_id", sid,
		"action", action,
		"event", event,
		"depth", depth,
	)
	for _, dir := range out.Directives {
		switch dir.Kind {
		case rules.Push:
			res.Messages = append(res.Messages, protocol.UIPush{WidgetID: dir.WidgetID})
		case rules.Pop:
			res.Messages = append(res.Messages, protocol.UIPop{WidgetID: dir.WidgetID})
		}
	}
	if out.Query != nil {
		req := *out.Query
		req.SessionID = sid
		req.Depth = depth
		d.issue(res, req)
	}
}

// issue journals req and queues it, unless it exceeds the chain limit.
func (d *Dispatcher) issue(res *Result, req query.Request) {
	if d.maxChain > 0 && req.Depth > d.maxChain {
		err := &ChainLimitError{
			SessionID: req.SessionID,
			QueryID:   req.QueryID,
			Depth:     req.Depth,
			Limit:     d.maxChain,
		}
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindChainLimit).Inc()
		slog.Error("chained query dropped",
			"session_id", req.SessionID,
			"query_id", req.QueryID,
			"error", err,
		)
		return
	}

	entry := d.journal.Append(req.SessionID, string(req.Op), req.QueryID, req.Statement)
	slog.Debug("query issued",
		"session_id", req.SessionID,
		"query_id", req.QueryID,
		"op", string(req.Op),
		"origin", req.Origin,
		"journal_seq", entry.Seq,
	)
	res.Queries = append(res.Queries, req)
}

func (d *Dispatcher) badKey(sid, kind, key string, err error) Result {
	metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindBadKey).Inc()
	slog.Warn("bad cache key",
		"session_id", sid,
		"nd_type", kind,
		"cache_key", key,
		"error", err,
	)
	return Result{Messages: []protocol.Outbound{protocol.Error{Type: kind, Key: key, Message: protocol.BadKey}}}
}

func (d *Dispatcher) badRead(sid string, m protocol.CacheRequest, err error) Result {
	metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindBadKey).Inc()
	slog.Warn("bad cache key",
		"session_id", sid,
		"nd_type", protocol.KindCacheRequest,
		"cache_key", m.Key,
		"namespace", m.Namespace,
		"error", err,
	)
	return Result{Messages: []protocol.Outbound{
		protocol.CacheResponse{Key: m.Key, Namespace: m.Namespace, Error: protocol.BadKey},
	}}
}
