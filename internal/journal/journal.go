// Package journal keeps the per-session operation journal: an append-only log
// of every statement issued on behalf of a session, kept for diagnostics.
//
// Entries are never mutated or deleted and live as long as the process.
// Reads for a session that never issued a statement return an empty log.
package journal

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry is one journaled statement.
type Entry struct {
	ID        ulid.ULID `json:"id"`
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	Op        string    `json:"op"`
	QueryID   string    `json:"query_id"`
	Statement string    `json:"sql"`
	Timestamp time.Time `json:"ts"`
}

// Journal is safe for concurrent use: the engine loop appends while HTTP
// handlers read.
type Journal struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	seq     int64
	entropy io.Reader
	now     func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the wall clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// New creates an empty journal.
func New(opts ...Option) *Journal {
	j := &Journal{
		entries: make(map[string][]Entry),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append records a statement for a session and returns the stored entry.
func (j *Journal) Append(sessionID, op, queryID, statement string) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	ts := j.now()
	j.seq++
	e := Entry{
		ID:        ulid.MustNew(ulid.Timestamp(ts), j.entropy),
		Seq:       j.seq,
		SessionID: sessionID,
		Op:        op,
		QueryID:   queryID,
		Statement: statement,
		Timestamp: ts,
	}
	j.entries[sessionID] = append(j.entries[sessionID], e)
	return e
}

// Entries returns a copy of a session's entries in append order.
func (j *Journal) Entries(sessionID string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	src := j.entries[sessionID]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// ReadAll returns a session's statements in append order.
func (j *Journal) ReadAll(sessionID string) []string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	src := j.entries[sessionID]
	out := make([]string, len(src))
	for i, e := range src {
		out[i] = e.Statement
	}
	return out
}

// Text returns a session's statements joined by newlines.
func (j *Journal) Text(sessionID string) string {
	return strings.Join(j.ReadAll(sessionID), "\n")
}

// Len returns the number of entries recorded for a session.
func (j *Journal) Len(sessionID string) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries[sessionID])
}
