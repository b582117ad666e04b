// Package server exposes the interview pipeline over HTTP: a WebSocket for
// the live session, a JSON analytics endpoint, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/interview"
	"github.com/user/interview-coach/internal/store"
)

type Server struct {
	orch *interview.Orchestrator
	http *http.Server
}

func New(addr string, orch *interview.Orchestrator) *Server {
	s := &Server{orch: orch}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", NewWebSocketHandler(orch))
	mux.HandleFunc("GET /api/analytics/{sessionId}", s.handleAnalytics)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	card, err := s.orch.Summary(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	case err != nil:
		log.Error().Err(err).Str("session_id", id).Msg("Failed to build analytics")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build analytics"})
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"active":    s.orch.ActiveSessions(),
		"queueSize": s.orch.Pool().QueueSize(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}
