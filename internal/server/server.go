// Package server is the HTTP surface: the websocket session endpoint, cache
// snapshots, per-session journals, metrics and the optional parquet mount.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/engine"
	"github.com/roach88/nodom/internal/protocol"
	"github.com/roach88/nodom/internal/session"
)

// Backend is what the server drives. Implemented by engine.Engine.
type Backend interface {
	SubmitRaw(sessionID string, data []byte) bool
	Snapshot(ctx context.Context, ns cache.Namespace) ([]byte, error)
	JournalText(sessionID string) string
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	backend    Backend
	registry   *session.Registry
	parquetDir string
	upgrader   websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithParquetDir serves the files in dir under /api/parquet/.
func WithParquetDir(dir string) Option {
	return func(s *Server) {
		s.parquetDir = dir
	}
}

// New creates a server. Sessions it accepts are registered in reg, which
// must be the Sender the backend delivers through.
func New(b Backend, reg *session.Registry, opts ...Option) *Server {
	s := &Server{
		backend:  b,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are local pages served from other ports.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/websock", s.handleWebsock)
		if s.parquetDir != "" {
			r.Handle("/parquet/*", http.StripPrefix("/api/parquet/", http.FileServer(http.Dir(s.parquetDir))))
		}
		r.Get("/{namespace}", s.handleSnapshot)
	})
	r.Get("/ui/duckjournal/{session}", s.handleJournal)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// corsMiddleware lets pages on other origins call the API and fetch parquet
// byte ranges.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ns, ok := cache.ParseNamespace(chi.URLParam(r, "namespace"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := s.backend.Snapshot(r.Context(), ns)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		slog.Error("snapshot failed",
			"namespace", string(ns),
			"error", err,
		)
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.backend.JournalText(chi.URLParam(r, "session"))))
}

// handleWebsock runs one session for the life of the connection.
func (s *Server) handleWebsock(w http.ResponseWriter, r *http.Request) {
	wc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}

	c := newConn(wc)
	go c.writeLoop()

	sid := s.registry.Register(c)
	slog.Info("session connected",
		"session_id", sid,
		"remote_addr", r.RemoteAddr,
	)
	if err := s.registry.Send(sid, protocol.DuckInstance{SessionID: sid}); err != nil {
		slog.Warn("session announce failed",
			"session_id", sid,
			"error", err,
		)
	}

	err = c.readLoop(func(data []byte) {
		if !s.backend.SubmitRaw(sid, data) {
			slog.Warn("message dropped: engine stopped", "session_id", sid)
		}
	})

	s.registry.Unregister(sid)
	c.close()
	if err != nil {
		slog.Warn("session read failed",
			"session_id", sid,
			"error", err,
		)
	}
	slog.Info("session disconnected", "session_id", sid)
}
