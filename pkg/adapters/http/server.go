package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/pool"
	"github.com/go-chi/chi/v5"
)

// Sessions is the part of session.Registry served over HTTP.
type Sessions interface {
	OnEvent(ev domain.Event) error
	Sessions() []domain.Identity
	SessionMemory(ctx context.Context, id domain.Identity) (*memory.Snapshot, error)
	KillSession(id domain.Identity) error
	ReinitializeSession(id domain.Identity) error
	ClearCache(ctx context.Context, id domain.Identity, owner, member string) (any, error)
}

// Streamer serves the outbound calls of one session over a long-lived connection.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, id domain.Identity)
}

// Server exposes event ingress and session administration.
type Server struct {
	Sessions Sessions
	Streams  Streamer
	Metrics  http.Handler
	Version  string
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreamer mounts GET /sessions/{id}/stream.
func WithStreamer(s Streamer) Option {
	return func(srv *Server) {
		srv.Streams = s
	}
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(srv *Server) {
		srv.Metrics = h
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(srv *Server) {
		srv.Version = v
	}
}

// WithLogger configures the request error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		srv.logger = logger
	}
}

// NewHandler creates the HTTP handler for sessions.
func NewHandler(sessions Sessions, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Version:  "dev",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	r.Post("/events", s.PostEvent)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.KillSession)
			r.Post("/reinit", s.ReinitializeSession)
			r.Delete("/cache/{owner}/{member}", s.ClearCache)
			if s.Streams != nil {
				r.Get("/stream", s.Stream)
			}
		})
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PostEvent handles the POST /events request.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostEvent: invalid request body", "err", err)
		return
	}
	if ev.Identity.IsZero() {
		http.Error(w, "Event identity is required", http.StatusBadRequest)
		return
	}
	if err := ev.Sanitize(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid event: %v", err), http.StatusBadRequest)
		s.logger.Warn("PostEvent: event rejected", "session", ev.Identity.String(), "err", err, "size", len(ev.Text))
		return
	}

	if err := s.Sessions.OnEvent(ev); err != nil {
		s.fail(w, "PostEvent", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.Sessions.Sessions()
	resp := make([]string, 0, len(ids))
	for _, id := range ids {
		resp = append(resp, id.String())
	}
	s.write(w, "ListSessions", resp)
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	snap, err := s.Sessions.SessionMemory(r.Context(), id)
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	s.write(w, "GetSession", snap)
}

// KillSession handles the DELETE /sessions/{id} request.
func (s *Server) KillSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	if err := s.Sessions.KillSession(id); err != nil {
		s.fail(w, "KillSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReinitializeSession handles the POST /sessions/{id}/reinit request.
func (s *Server) ReinitializeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	if err := s.Sessions.ReinitializeSession(id); err != nil {
		s.fail(w, "ReinitializeSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCache handles the DELETE /sessions/{id}/cache/{owner}/{member} request.
// The response carries the value that was cached, null when there was none.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	prev, err := s.Sessions.ClearCache(r.Context(), id, chi.URLParam(r, "owner"), chi.URLParam(r, "member"))
	if err != nil {
		s.fail(w, "ClearCache", err)
		return
	}
	s.write(w, "ClearCache", map[string]any{"previous": prev})
}

// Stream handles the GET /sessions/{id}/stream request.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	s.Streams.Serve(w, r, id)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.write(w, "GetHealth", map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.write(w, "GetInfo", map[string]any{
		"app":      "canopy-http",
		"version":  s.Version,
		"sessions": len(s.Sessions.Sessions()),
	})
}

// -- Helpers --

func (s *Server) identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, err := domain.ParseIdentity(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid session id: %v", err), http.StatusBadRequest)
		return domain.Identity{}, false
	}
	return id, true
}

func (s *Server) write(w http.ResponseWriter, op string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(op+" response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSessionExists), errors.Is(err, domain.ErrSessionKilled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pool.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.logger.Error(op+" failed", "err", err)
	}
}
