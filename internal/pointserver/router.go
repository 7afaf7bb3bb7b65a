package pointserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/points", s.handleListPoints)
		r.Get("/points/*", s.handleGetPoint)
		r.Get("/history/*", s.handleHistory)
		r.Get("/channels", s.handleChannels)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleStream)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"server_time":    time.Now().UTC().Format(time.RFC3339Nano),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"points":         s.points.Len(),
		"ws_clients":     s.hub.ClientCount(),
	}
	if s.status != nil {
		body["bridge"] = s.status()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleListPoints returns every point.
func (s *Server) handleListPoints(w http.ResponseWriter, _ *http.Request) {
	points := s.points.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"points": points,
		"count":  len(points),
	})
}

// handleGetPoint returns one point. The wildcard keeps '/' in names.
func (s *Server) handleGetPoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	p, err := s.points.Get(name)
	switch {
	case errors.Is(err, ErrPointNotFound):
		writeNotFound(w, "point not found: "+name)
		return
	case err != nil:
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// History query limits.
const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// handleHistory returns recorded samples of one point, newest first.
// ?limit=N caps the result (default 100, at most 1000).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	name := chi.URLParam(r, "*")
	rows, err := s.history(r.Context(), name, limit)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"point":   name,
		"limit":   limit,
		"samples": rows,
	})
}

// handleChannels returns the stored channel registry.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.channels == nil {
		writeUnavailable(w, "channel store is not enabled")
		return
	}
	channels, err := s.channels(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}
