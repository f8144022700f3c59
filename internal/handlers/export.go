package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// ExportHandler serves the Excel workbook.
type ExportHandler struct {
	Sites   *models.SiteStore
	Queries *models.QueryStore
	Results *models.MonitoringResultStore
}

// ExportXLSX handles GET /api/export/xlsx. The results sheet honours the same
// filters as GET /api/results and defaults to the last 30 days.
func (h *ExportHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	f, err := parseResultFilter(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.From == nil && f.SessionID == nil {
		from := now.AddDate(0, 0, -30)
		f.From = &from
	}
	if f.Limit == 0 {
		f.Limit = 5000
	}

	var d export.WorkbookData
	if d.Sites, err = h.Sites.ListAll(ctx); err != nil {
		writeStoreError(w, "export xlsx: sites", err)
		return
	}
	if d.Queries, err = h.Queries.List(ctx, false, nil); err != nil {
		writeStoreError(w, "export xlsx: queries", err)
		return
	}
	if d.Results, err = h.Results.List(ctx, f); err != nil {
		writeStoreError(w, "export xlsx: results", err)
		return
	}
	if d.Districts, err = h.Sites.Districts(ctx); err != nil {
		writeStoreError(w, "export xlsx: districts", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="regionwatch-%s.xlsx"`, now.Format("20060102_1504")))
	if err := export.WriteWorkbook(w, d); err != nil {
		slog.Error("export xlsx", "err", err)
	}
}
