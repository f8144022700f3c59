package handlers

import (
	"net/http"
	"time"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// SessionsHandler serves monitoring session history and results.
type SessionsHandler struct {
	Sessions *models.MonitoringSessionStore
	Results  *models.MonitoringResultStore
}

// ListSessions handles GET /api/sessions?limit=N.
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Sessions.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []models.MonitoringSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetSession handles GET /api/sessions/{id} and includes the session's
// results.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	session, err := h.Sessions.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get session", err)
		return
	}
	results, err := h.Results.List(r.Context(), models.ResultFilter{SessionID: &id, Limit: 5000})
	if err != nil {
		writeStoreError(w, "get session results", err)
		return
	}
	if results == nil {
		results = []models.MonitoringResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"results": results,
	})
}

// ListResults handles GET /api/results with the filters read by
// parseResultFilter.
func (h *SessionsHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseResultFilter(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := h.Results.List(r.Context(), f)
	if err != nil {
		writeStoreError(w, "list results", err)
		return
	}
	if results == nil {
		results = []models.MonitoringResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
