package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/nodom/internal/metrics"
)

// Run executes req on a and returns a correlated response. It never fails:
// an engine error is logged, counted and attached to Response.Err, and the
// response keeps the shape the op promises (an ack for scans, an empty
// result set for queries).
func Run(ctx context.Context, a Adapter, req Request) Response {
	resp := Response{Op: req.Op, QueryID: req.QueryID}

	start := time.Now()
	var err error
	switch req.Op {
	case OpScan:
		_, err = a.Execute(ctx, req.Statement)
	default:
		resp.Op = OpQuery
		var rs *ResultSet
		rs, err = a.Query(ctx, req.Statement)
		resp.Result = rs
	}
	metrics.QueryDuration.WithLabelValues(string(resp.Op)).Observe(time.Since(start).Seconds())

	if err != nil {
		resp.Err = &EngineError{QueryID: req.QueryID, Statement: req.Statement, Err: err}
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrKindEngine).Inc()
		slog.Error("query execution failed",
			"session_id", req.SessionID,
			"query_id", req.QueryID,
			"op", string(req.Op),
			"sql", req.Statement,
			"error", err,
		)
		if resp.Op == OpQuery {
			resp.Result = EmptyResult()
		}
		return resp
	}

	if resp.Op == OpQuery && resp.Result == nil {
		resp.Result = EmptyResult()
	}
	slog.Debug("query executed",
		"session_id", req.SessionID,
		"query_id", req.QueryID,
		"op", string(resp.Op),
		"duration", time.Since(start),
	)
	return resp
}
