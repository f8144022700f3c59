package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Saul-Punybz/regionwatch/internal/middleware"
	"github.com/Saul-Punybz/regionwatch/internal/monitor"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

// RunController starts, observes and cancels monitoring runs.
type RunController interface {
	Start(req monitor.Request) error
	Snapshot() monitor.Snapshot
	Cancel() bool
}

// MonitorHandler exposes the single active monitoring run.
type MonitorHandler struct {
	Runner RunController
	// DefaultWindow is used when a start request carries no window.
	DefaultWindow scraper.WindowSpec
}

// Start handles POST /api/monitor/start. It answers 202 once the run is
// launched and 409 while another run is active.
func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req monitor.Request
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.Window.Mode == "" && req.Window.Days == 0 {
		req.Window = h.DefaultWindow
	}
	if _, err := req.Window.Resolve(time.Now()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Concurrency > scraper.MaxConcurrency {
		req.Concurrency = scraper.MaxConcurrency
	}

	err := h.Runner.Start(req)
	if errors.Is(err, monitor.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "a monitoring run is already in progress")
		return
	}
	if err != nil {
		slog.Error("monitor start", "err", err)
		writeError(w, http.StatusInternalServerError, "could not start run")
		return
	}

	user := middleware.UserFromContext(r.Context())
	if user != nil {
		slog.Info("monitor: run started from dashboard", "user", user.Email)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Status handles GET /api/monitor/status.
func (h *MonitorHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Runner.Snapshot())
}

// Cancel handles POST /api/monitor/cancel.
func (h *MonitorHandler) Cancel(w http.ResponseWriter, _ *http.Request) {
	if !h.Runner.Cancel() {
		writeError(w, http.StatusConflict, "no monitoring run in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
