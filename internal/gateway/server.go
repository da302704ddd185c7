// Package gateway is the HTTP surface: the inbound message webhook, the
// outbound response emitters and a small admin API over sessions and
// escalations.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/engine"
	"github.com/nextcampus/aula/internal/store"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine *engine.Engine
	log    *slog.Logger
	http   *http.Server

	limitRPM int
	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer builds the HTTP server from configuration.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		engine:   eng,
		log:      log,
		limitRPM: cfg.RateLimitRPM,
		limiters: make(map[string]*rate.Limiter),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /webhook/message", s.handleMessage)
	mux.HandleFunc("GET /sessions", s.handleSessionStats)
	mux.HandleFunc("GET /sessions/{key}", s.handleSessionGet)
	mux.HandleFunc("DELETE /sessions/{key}", s.handleSessionEvict)
	mux.HandleFunc("GET /escalations", s.handleEscalationList)
	mux.HandleFunc("POST /escalations/{id}/resolve", s.handleEscalationResolve)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// normalized to nil.
func (s *Server) ListenAndServe() error {
	s.log.Info("gateway listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type inboundPayload struct {
	SessionKey    string            `json:"session_key"`
	Text          string            `json:"text"`
	SourceChannel string            `json:"source_channel"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var p inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if p.SessionKey == "" || p.Text == "" {
		writeError(w, http.StatusBadRequest, "session_key and text are required")
		return
	}
	if !s.allow(p.SessionKey) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	s.engine.Submit(bus.InboundMessage{
		SessionKey:    p.SessionKey,
		Text:          p.Text,
		ArrivalTime:   time.Now(),
		SourceChannel: p.SourceChannel,
		Metadata:      p.Metadata,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// allow enforces the per-session rate limit. Limiters are created lazily;
// idle ones are reaped by the hygiene sweep cycle via the session registry,
// not here, so the map stays proportional to active sessions.
func (s *Server) allow(key string) bool {
	if s.limitRPM <= 0 {
		return true
	}
	s.limMu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		burst := s.limitRPM / 6
		if burst < 3 {
			burst = 3
		}
		lim = rate.NewLimiter(rate.Limit(float64(s.limitRPM)/60.0), burst)
		s.limiters[key] = lim
	}
	s.limMu.Unlock()
	return lim.Allow()
}

func (s *Server) handleSessionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Sessions().Stats())
}

type sessionPayload struct {
	Key          string    `json:"key"`
	Channel      string    `json:"channel,omitempty"`
	AuthState    string    `json:"auth_state"`
	IdentityID   string    `json:"identity_id,omitempty"`
	Created      time.Time `json:"created"`
	LastActivity time.Time `json:"last_activity"`
	Pending      bool      `json:"pending_work"`
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, ok := s.engine.Sessions().Peek(key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	p := sessionPayload{
		Key:          v.Key,
		Channel:      v.Channel,
		AuthState:    string(v.AuthState),
		Created:      v.Created,
		LastActivity: v.LastActivity,
		Pending:      s.engine.HasPending(key),
	}
	if v.Identity != nil {
		p.IdentityID = v.Identity.ID
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSessionEvict(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if s.engine.HasPending(key) {
		writeError(w, http.StatusConflict, "session has pending work")
		return
	}
	s.engine.Sessions().Evict(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEscalationList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Escalations().ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if recs == nil {
		recs = []store.EscalationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleEscalationResolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	switch err := s.engine.Escalations().Resolve(r.Context(), id); {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown or already resolved")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "resolve failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
