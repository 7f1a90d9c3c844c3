// Package session tracks live client connections.
//
// The Registry is the single owner of connection handles. Other components
// address sessions only by id; a send to an id that has gone away reports an
// AddressingError and delivers nothing.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/nodom/internal/metrics"
	"github.com/roach88/nodom/internal/protocol"
)

// Conn is the write side of one client connection.
type Conn interface {
	// Send queues one encoded message for delivery.
	Send(msg []byte) error
}

// AddressingError reports a send to an unknown or closed session.
type AddressingError struct {
	SessionID string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("no session %q", e.SessionID)
}

// IsAddressingError reports whether err is an AddressingError.
func IsAddressingError(err error) bool {
	var ae *AddressingError
	return errors.As(err, &ae)
}

// Registry maps session ids to connections. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
	ids   IDGenerator
}

// NewRegistry creates a registry that names sessions with ids. A nil
// generator uses UUIDGenerator.
func NewRegistry(ids IDGenerator) *Registry {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Registry{
		conns: make(map[string]Conn),
		ids:   ids,
	}
}

// Register adds conn and returns its fresh session id.
func (r *Registry) Register(conn Conn) string {
	id := r.ids.Generate()

	r.mu.Lock()
	r.conns[id] = conn
	n := len(r.conns)
	r.mu.Unlock()

	metrics.Sessions.Set(float64(n))
	slog.Info("session registered", "session_id", id, "sessions", n)
	return id
}

// Unregister removes a session. Removing an unknown id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		metrics.Sessions.Set(float64(n))
		slog.Info("session unregistered", "session_id", id, "sessions", n)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send encodes msg and writes it to session id.
func (r *Registry) Send(id string, msg protocol.Outbound) error {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return &AddressingError{SessionID: id}
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	if err := conn.Send(data); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind(), id, err)
	}
	metrics.OutboundTotal.WithLabelValues(msg.Kind()).Inc()
	return nil
}
