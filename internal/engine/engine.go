package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/metrics"
	"github.com/roach88/nodom/internal/protocol"
	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/session"
)

// Sender delivers outbound messages to a session.
// Implemented by session.Registry.
type Sender interface {
	Send(sessionID string, msg protocol.Outbound) error
}

// ErrStopped is returned by calls made after the engine stopped.
var ErrStopped = errors.New("engine stopped")

type eventKind int

const (
	eventInbound eventKind = iota + 1
	eventUndecodable
	eventCompletion
	eventCall
)

// event is one unit of work for the loop.
type event struct {
	kind      eventKind
	sessionID string
	inbound   protocol.Inbound
	err       error
	request   query.Request
	response  query.Response
	call      func(*Dispatcher)
}

// Engine is the single-writer event loop.
//
// Thread-safety model:
//   - Submit, SubmitRaw, Snapshot and JournalText: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	d       *Dispatcher
	adapter query.Adapter
	sender  Sender
	clock   *Clock

	events  *queue[event]
	pending *queue[query.Request]

	running sync.WaitGroup
}

// New creates an engine. The adapter is wrapped so statements never overlap.
func New(d *Dispatcher, adapter query.Adapter, sender Sender) *Engine {
	return &Engine{
		d:       d,
		adapter: query.Serialize(adapter),
		sender:  sender,
		clock:   NewClock(),
		events:  newQueue[event](),
		pending: newQueue[query.Request](),
	}
}

// Submit queues a decoded message from sessionID. It returns false once the
// engine has stopped.
func (e *Engine) Submit(sessionID string, msg protocol.Inbound) bool {
	return e.events.Enqueue(event{kind: eventInbound, sessionID: sessionID, inbound: msg})
}

// SubmitRaw decodes data and queues it. Undecodable messages are rejected on
// the loop so their error notice is ordered with the session's other output.
func (e *Engine) SubmitRaw(sessionID string, data []byte) bool {
	msg, err := protocol.Decode(data)
	if err != nil {
		return e.events.Enqueue(event{kind: eventUndecodable, sessionID: sessionID, err: err})
	}
	return e.Submit(sessionID, msg)
}

// Snapshot serializes a cache namespace. It runs on the loop, so it sees a
// state between two messages, never half of one.
func (e *Engine) Snapshot(ctx context.Context, ns cache.Namespace) ([]byte, error) {
	type reply struct {
		data []byte
		err  error
	}
	ch := make(chan reply, 1)
	ok := e.events.Enqueue(event{kind: eventCall, call: func(d *Dispatcher) {
		data, err := d.Cache().Snapshot(ns)
		ch <- reply{data, err}
	}})
	if !ok {
		return nil, ErrStopped
	}
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// JournalText returns a session's statements, newline-joined. The journal is
// safe for concurrent reads, so this does not go through the loop.
func (e *Engine) JournalText(sessionID string) string {
	return e.d.Journal().Text(sessionID)
}

// Run processes events until ctx is cancelled or Stop is called.
//
// ERROR HANDLING: every failure is logged where it happens and processing
// continues with the next event. No error stops the loop.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "max_chain", e.d.maxChain)

	e.running.Add(1)
	go func() {
		defer e.running.Done()
		e.runQueries(ctx)
	}()
	defer func() {
		e.pending.Close()
		e.running.Wait()
	}()

	for {
		ev, ok := e.events.TryDequeue()
		if ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.events.Close()
			return ctx.Err()

		case <-e.events.Wait():
			if e.events.Closed() && e.events.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue; Run returns once it drains.
func (e *Engine) Stop() {
	e.events.Close()
}

// process handles one event.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ev event) {
	seq := e.clock.Next()

	var res Result
	switch ev.kind {
	case eventInbound:
		slog.Debug("processing message",
			"seq", seq,
			"session_id", ev.sessionID,
			"nd_type", ev.inbound.Kind(),
		)
		res = e.d.Dispatch(ev.sessionID, ev.inbound)
	case eventUndecodable:
		res = e.d.Reject(ev.sessionID, ev.err)
	case eventCompletion:
		slog.Debug("processing completion",
			"seq", seq,
			"session_id", ev.request.SessionID,
			"query_id", ev.response.QueryID,
			"failed", ev.response.Failed(),
		)
		res = e.d.Complete(ev.request, ev.response)
		ev.sessionID = ev.request.SessionID
	case eventCall:
		ev.call(e.d)
		return
	default:
		slog.Error("unknown event kind", "seq", seq, "kind", int(ev.kind))
		return
	}

	e.deliver(ev.sessionID, res.Messages)
	for _, req := range res.Queries {
		if !e.pending.Enqueue(req) {
			slog.Warn("query dropped: engine stopping",
				"session_id", req.SessionID,
				"query_id", req.QueryID,
			)
		}
	}
}

// deliver sends msgs to sessionID in order. If the session is gone the rest
// of the batch is dropped.
func (e *Engine) deliver(sessionID string, msgs []protocol.Outbound) {
	for i, m := range msgs {
		err := e.sender.Send(sessionID, m)
		if err == nil {
			continue
		}
		if session.IsAddressingError(err) {
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindAddressing).Inc()
			slog.Warn("session gone, dropping messages",
				"session_id", sessionID,
				"nd_type", m.Kind(),
				"dropped", len(msgs)-i,
				"error", err,
			)
			return
		}
		slog.Error("send failed",
			"session_id", sessionID,
			"nd_type", m.Kind(),
			"error", err,
		)
	}
}

// runQueries is the query worker. It runs requests in FIFO order and hands
// each completion back to the loop. Queries are not cancelled when their
// session disconnects; the completion is dropped on delivery instead.
func (e *Engine) runQueries(ctx context.Context) {
	for {
		req, ok := e.pending.TryDequeue()
		if ok {
			resp := query.Run(ctx, e.adapter, req)
			if !e.events.Enqueue(event{kind: eventCompletion, request: req, response: resp}) {
				slog.Warn("completion dropped: engine stopping",
					"session_id", req.SessionID,
					"query_id", req.QueryID,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-e.pending.Wait():
			if e.pending.Closed() && e.pending.Len() == 0 {
				return
			}
		}
	}
}
