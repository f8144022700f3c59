package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/monitor"
	"github.com/Saul-Punybz/regionwatch/internal/storage"
)

const backupTimeout = 5 * time.Minute

// AdminHandler groups admin-only maintenance handlers.
type AdminHandler struct {
	Snapshot      export.Sources
	Storage       *storage.Client
	Results       *models.MonitoringResultStore
	Logs          *models.LogStore
	RetentionDays int
	BackupKeep    int
}

// Backup handles POST /api/admin/backup.
func (h *AdminHandler) Backup(w http.ResponseWriter, r *http.Request) {
	if h.Storage == nil || !h.Storage.Configured() {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), backupTimeout)
	defer cancel()

	key, err := monitor.Backup(ctx, h.Snapshot, h.Storage, h.Logs, h.BackupKeep)
	if err != nil {
		slog.Error("admin backup", "err", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

// ListBackups handles GET /api/admin/backups.
func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if h.Storage == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	backups, err := h.Storage.ListBackups(r.Context())
	if errors.Is(err, storage.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	if err != nil {
		slog.Error("admin list backups", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list backups")
		return
	}
	if backups == nil {
		backups = []storage.BackupObject{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

type cleanupRequest struct {
	Days int `json:"days"`
}

// Cleanup handles POST /api/admin/cleanup with optional {"days": N}.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	req := cleanupRequest{Days: h.RetentionDays}
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.Days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be positive")
		return
	}

	n, err := monitor.CleanupOldResults(r.Context(), h.Results, h.Logs, req.Days)
	if err != nil {
		slog.Error("admin cleanup", "err", err)
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n, "days": req.Days})
}
