// Package export converts stored data to and from operator-facing file
// formats: CSV site lists, Excel workbooks and JSON backup snapshots.
package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// siteColumns maps accepted CSV headers, Russian or English, to site fields.
var siteColumns = map[string]string{
	"название":         "name",
	"name":             "name",
	"регион":           "region",
	"region":           "region",
	"город":            "city",
	"city":             "city",
	"сайт":             "website",
	"website":          "website",
	"website_url":      "website",
	"округ":            "district",
	"federal_district": "district",
	"district":         "district",
	"все_сайты":        "all_sites",
	"all_sites":        "all_sites",
	"sitemap":          "sitemap_url",
	"sitemap_url":      "sitemap_url",
	"активен":          "active",
	"is_active":        "active",
	"active":           "active",
}

// siteHeader is the column order written by WriteSitesCSV.
var siteHeader = []string{"name", "region", "city", "district", "website", "sitemap_url", "all_sites", "active"}

// ImportError reports a rejected CSV row.
type ImportError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport summarizes an import.
type ImportReport struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// SiteUpserter stores an imported site keyed by name and district.
type SiteUpserter interface {
	Upsert(ctx context.Context, site *models.Site) (bool, error)
}

// ParseSitesCSV reads a site list. Both comma and semicolon separated files
// are accepted; the header row may use Russian or English column names. Rows
// without a name or district are reported and skipped.
func ParseSitesCSV(r io.Reader) ([]models.Site, []ImportError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("csv: read: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("csv: empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv: header: %w", err)
	}

	fields := make([]string, len(header))
	hasName := false
	for i, h := range header {
		fields[i] = siteColumns[strings.ToLower(strings.TrimSpace(h))]
		if fields[i] == "name" {
			hasName = true
		}
	}
	if !hasName {
		return nil, nil, errors.New("csv: no name column in header")
	}

	var sites []models.Site
	var rejected []ImportError
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rejected = append(rejected, ImportError{Row: row, Error: err.Error()})
			continue
		}

		site := models.Site{Active: true}
		for i, v := range rec {
			if i >= len(fields) {
				break
			}
			v = strings.TrimSpace(v)
			switch fields[i] {
			case "name":
				site.Name = v
			case "region":
				site.Region = v
			case "city":
				site.City = v
			case "website":
				site.Website = v
			case "district":
				site.District = v
			case "all_sites":
				site.AllSites = v
			case "sitemap_url":
				site.SitemapURL = v
			case "active":
				site.Active = parseActive(v)
			}
		}

		switch {
		case site.Name == "":
			rejected = append(rejected, ImportError{Row: row, Error: "name is required"})
		case site.District == "":
			rejected = append(rejected, ImportError{Row: row, Error: "district is required"})
		default:
			sites = append(sites, site)
		}
	}
	return sites, rejected, nil
}

// ImportSites parses r and upserts every valid row.
func ImportSites(ctx context.Context, store SiteUpserter, r io.Reader) (*ImportReport, error) {
	sites, rejected, err := ParseSitesCSV(r)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Errors: rejected}
	for i := range sites {
		created, err := store.Upsert(ctx, &sites[i])
		if err != nil {
			return report, fmt.Errorf("csv: import %q: %w", sites[i].Name, err)
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}
	return report, nil
}

// WriteSitesCSV writes sites with an English header row.
func WriteSitesCSV(w io.Writer, sites []models.Site) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(siteHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, s := range sites {
		rec := []string{
			s.Name, s.Region, s.City, s.District, s.Website,
			s.SitemapURL, s.AllSites, strconv.FormatBool(s.Active),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("csv: write %q: %w", s.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func detectDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func parseActive(v string) bool {
	switch strings.ToLower(v) {
	case "", "1", "true", "yes", "да", "✅":
		return true
	}
	return false
}
