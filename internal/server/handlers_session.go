package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clauderelay/clauderelay/internal/tracker"
	"github.com/clauderelay/clauderelay/pkg/types"
)

// listSessions handles GET /session/ with optional active,
// projectPath and since query filters.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	var filter types.SessionFilter

	if active := r.URL.Query().Get("active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "active must be true or false")
			return
		}
		filter.IsActive = &v
	}
	filter.ProjectPath = r.URL.Query().Get("projectPath")
	if since := r.URL.Query().Get("since"); since != "" {
		v, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "since must be ms since epoch")
			return
		}
		filter.Since = v
	}

	sessions := s.store.List(&filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// activeSessions handles GET /session/active: the tracker's live
// view, as opposed to the store's persisted one.
func (s *Server) activeSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.tracker.ActiveSessions()
	if sessions == nil {
		sessions = []tracker.SessionState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// sessionStats handles GET /session/stats: both views side by side.
func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tracker": s.tracker.Stats(),
		"store":   s.store.Stats(),
	})
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	metadata, ok := s.store.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}

// deleteSession handles DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if !s.store.Delete(sessionID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sessionHealth handles GET /session/{sessionID}/health.
func (s *Server) sessionHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.CheckHealth(chi.URLParam(r, "sessionID")))
}

// validateSession handles GET /session/{sessionID}/validate.
func (s *Server) validateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.ValidateForContinuation(chi.URLParam(r, "sessionID")))
}

// exportSessions handles GET /session/export?format=json|csv.
func (s *Server) exportSessions(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	data, err := s.store.Export(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	contentType := "application/json"
	if strings.EqualFold(format, "csv") {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// health handles GET /health: the recovery engine's liveness probe
// plus both stats blocks.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	trackerStats := s.tracker.Stats()
	storeStats := s.store.Stats()

	resp := types.HealthResponse{
		Healthy: s.recovery.HealthCheck(),
		Tracker: &trackerStats,
		Store:   &storeStats,
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
