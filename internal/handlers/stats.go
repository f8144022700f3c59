package handlers

import (
	"net/http"

	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

// StatsHandler serves the statistics overview and the operator log.
type StatsHandler struct {
	Stats *models.StatsStore
	Logs  *models.LogStore
}

// Overview handles GET /api/stats.
func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.Stats.Overview(r.Context())
	if err != nil {
		writeStoreError(w, "stats overview", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// ListLogs handles GET /api/logs?level=ERROR&limit=N.
func (h *StatsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Logs.Recent(r.Context(), r.URL.Query().Get("level"), queryInt(r, "limit", 100))
	if err != nil {
		writeStoreError(w, "list logs", err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// Periods handles GET /api/periods: the quick period presets and the window
// modes accepted by POST /api/monitor/start.
func Periods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"quick_days":   scraper.QuickPeriods,
		"default_days": scraper.DefaultWindowDays,
		"modes":        []string{scraper.ModeRecent, scraper.ModeYesterday, scraper.ModeDate, scraper.ModeRange},
	})
}
