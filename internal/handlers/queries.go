package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// QueriesHandler groups search query HTTP handlers.
type QueriesHandler struct {
	Queries *models.QueryStore
}

// ListQueries handles GET /api/queries?active=true.
func (h *QueriesHandler) ListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.Queries.List(r.Context(), r.URL.Query().Get("active") == "true", nil)
	if err != nil {
		writeStoreError(w, "list queries", err)
		return
	}
	if queries == nil {
		queries = []models.Query{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": queries,
		"count":   len(queries),
	})
}

// CreateQuery handles POST /api/queries.
func (h *QueriesHandler) CreateQuery(w http.ResponseWriter, r *http.Request) {
	var q models.Query
	if !decodeJSON(w, r, &q) {
		return
	}
	q.Active = true
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.Queries.Create(r.Context(), &q)
	if err != nil {
		slog.Error("create query", "err", err)
		writeError(w, http.StatusInternalServerError, "could not create query")
		return
	}
	if !created {
		writeError(w, http.StatusConflict, "query already exists")
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// UpdateQuery handles PUT /api/queries/{id}.
func (h *QueriesHandler) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	var q models.Query
	if !decodeJSON(w, r, &q) {
		return
	}
	q.ID = id
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Queries.Update(r.Context(), &q); err != nil {
		writeStoreError(w, "update query", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ToggleQuery handles PATCH /api/queries/{id}/toggle.
func (h *QueriesHandler) ToggleQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Queries.ToggleActive(r.Context(), id, req.Active); err != nil {
		writeStoreError(w, "toggle query", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

// DeleteQuery handles DELETE /api/queries/{id}.
func (h *QueriesHandler) DeleteQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.Queries.Delete(r.Context(), id); err != nil {
		writeStoreError(w, "delete query", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
