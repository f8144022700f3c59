package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// maxImportBytes caps uploaded CSV files.
const maxImportBytes = 10 << 20

// SitesHandler groups site management HTTP handlers.
type SitesHandler struct {
	Sites *models.SiteStore
	Logs  *models.LogStore
}

// ListSites handles GET /api/sites?active=true&district=X.
func (h *SitesHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sites, err := h.Sites.List(r.Context(), models.SiteFilter{
		ActiveOnly: q.Get("active") == "true",
		District:   q.Get("district"),
	})
	if err != nil {
		writeStoreError(w, "list sites", err)
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sites": sites,
		"count": len(sites),
	})
}

// GetSite handles GET /api/sites/{id}.
func (h *SitesHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	site, err := h.Sites.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get site", err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// CreateSite handles POST /api/sites.
func (h *SitesHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var site models.Site
	if !decodeJSON(w, r, &site) {
		return
	}
	if err := site.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Sites.Create(r.Context(), &site); err != nil {
		slog.Error("create site", "err", err)
		writeError(w, http.StatusInternalServerError, "could not create site")
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

// UpdateSite handles PUT /api/sites/{id}.
func (h *SitesHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	var site models.Site
	if !decodeJSON(w, r, &site) {
		return
	}
	site.ID = id
	if err := site.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Sites.Update(r.Context(), &site); err != nil {
		writeStoreError(w, "update site", err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

type toggleRequest struct {
	Active bool `json:"active"`
}

// ToggleSite handles PATCH /api/sites/{id}/toggle.
func (h *SitesHandler) ToggleSite(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Sites.ToggleActive(r.Context(), id, req.Active); err != nil {
		writeStoreError(w, "toggle site", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

// DeleteSite handles DELETE /api/sites/{id}. The site's results go with it.
func (h *SitesHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.Sites.Delete(r.Context(), id); err != nil {
		writeStoreError(w, "delete site", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Districts handles GET /api/sites/districts.
func (h *SitesHandler) Districts(w http.ResponseWriter, r *http.Request) {
	districts, err := h.Sites.Districts(r.Context())
	if err != nil {
		writeStoreError(w, "list districts", err)
		return
	}
	if districts == nil {
		districts = []models.DistrictCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"districts": districts})
}

// ImportCSV handles POST /api/sites/import. The CSV arrives either as the
// "file" field of a multipart form or as the raw request body.
func (h *SitesHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		src = file
	}

	report, err := export.ImportSites(r.Context(), h.Sites, src)
	if err != nil {
		slog.Error("import sites", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := fmt.Sprintf("imported sites: %d created, %d updated, %d rejected",
		report.Created, report.Updated, len(report.Errors))
	if err := h.Logs.Add(r.Context(), models.LogInfo, "import", msg); err != nil {
		slog.Warn("import sites: write log", "err", err)
	}
	slog.Info("import sites", "created", report.Created, "updated", report.Updated, "rejected", len(report.Errors))
	writeJSON(w, http.StatusOK, report)
}

// ExportCSV handles GET /api/sites/export.
func (h *SitesHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sites, err := h.Sites.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, "export sites", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="sites-%s.csv"`, time.Now().Format("20060102")))
	if err := export.WriteSitesCSV(w, sites); err != nil {
		slog.Error("export sites", "err", err)
	}
}
