// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error kinds used as the "kind" label of ErrorsTotal.
const (
	ErrKindAddressing   = "addressing"
	ErrKindUnrecognized = "unrecognized"
	ErrKindDecode       = "decode"
	ErrKindEngine       = "engine"
	ErrKindBadKey       = "bad_key"
	ErrKindChainLimit   = "chain_limit"
	ErrKindDerive       = "derive"
)

var (
	// MessagesTotal counts inbound session messages by nd_type.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodom_messages_total",
		Help: "Inbound session messages dispatched, by nd_type",
	}, []string{"nd_type"})

	// OutboundTotal counts outbound session messages by nd_type.
	OutboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodom_outbound_total",
		Help: "Outbound session messages produced, by nd_type",
	}, []string{"nd_type"})

	// ErrorsTotal counts swallowed errors by kind.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodom_errors_total",
		Help: "Errors logged and swallowed by the core, by kind",
	}, []string{"kind"})

	// QueryDuration observes query adapter latency by op.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodom_query_duration_seconds",
		Help:    "Query execution adapter latency, by op",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"op"})

	// Sessions is the number of registered sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nodom_sessions",
		Help: "Currently registered sessions",
	})
)
