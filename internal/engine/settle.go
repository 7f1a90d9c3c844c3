package engine

import (
	"context"

	"github.com/roach88/nodom/internal/protocol"
	"github.com/roach88/nodom/internal/query"
)

// Delivery is one outbound message and the session it is addressed to.
type Delivery struct {
	SessionID string
	Message   protocol.Outbound
}

// Settle handles msg and then runs every query it causes against adapter,
// FIFO, until none remain. It returns all deliveries in the order the loop
// would send them when no other session is active.
//
// Settle runs in the caller's goroutine; it is for tests, the scenario
// harness and tools, not for serving.
func (d *Dispatcher) Settle(ctx context.Context, adapter query.Adapter, sid string, msg protocol.Inbound) []Delivery {
	return d.settle(ctx, adapter, sid, d.Dispatch(sid, msg))
}

// SettleRaw decodes data and settles it. Undecodable input yields the error
// notice Reject produces.
func (d *Dispatcher) SettleRaw(ctx context.Context, adapter query.Adapter, sid string, data []byte) []Delivery {
	msg, err := protocol.Decode(data)
	if err != nil {
		return d.settle(ctx, adapter, sid, d.Reject(sid, err))
	}
	return d.Settle(ctx, adapter, sid, msg)
}

func (d *Dispatcher) settle(ctx context.Context, adapter query.Adapter, sid string, res Result) []Delivery {
	var out []Delivery
	for _, m := range res.Messages {
		out = append(out, Delivery{SessionID: sid, Message: m})
	}

	pending := res.Queries
	for len(pending) > 0 {
		req := pending[0]
		pending = pending[1:]

		resp := query.Run(ctx, adapter, req)
		next := d.Complete(req, resp)
		for _, m := range next.Messages {
			out = append(out, Delivery{SessionID: req.SessionID, Message: m})
		}
		pending = append(pending, next.Queries...)
	}
	return out
}
