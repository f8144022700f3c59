package export

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// Sheet names of the exported workbook.
const (
	SheetSites     = "Sites"
	SheetQueries   = "Queries"
	SheetResults   = "Results"
	SheetDistricts = "Districts"
)

// maxCellContent is the number of characters of result content written to a
// cell.
const maxCellContent = 500

// WorkbookData is everything written to one export.
type WorkbookData struct {
	Sites     []models.Site
	Queries   []models.Query
	Results   []models.MonitoringResult
	Districts []models.DistrictCount
}

type sheet struct {
	name   string
	header []string
	widths []float64
	rows   [][]any
}

// BuildWorkbook lays out d as a workbook with one sheet per entity. The
// caller must Close the returned file.
func BuildWorkbook(d WorkbookData) (*excelize.File, error) {
	sheets := []sheet{
		sitesSheet(d.Sites),
		queriesSheet(d.Queries),
		resultsSheet(d.Results),
		districtsSheet(d.Districts),
	}

	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("excel: style: %w", err)
	}

	for i, sh := range sheets {
		if i == 0 {
			err = f.SetSheetName("Sheet1", sh.name)
		} else {
			_, err = f.NewSheet(sh.name)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("excel: sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(f, sh, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteWorkbook builds the workbook and writes it as .xlsx to w.
func WriteWorkbook(w io.Writer, d WorkbookData) error {
	f, err := BuildWorkbook(d)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("excel: write: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle int) error {
	header := make([]any, len(sh.header))
	for i, h := range sh.header {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.name, "A1", &header); err != nil {
		return fmt.Errorf("excel: %s header: %w", sh.name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(sh.header), 1)
	if err != nil {
		return fmt.Errorf("excel: %s header: %w", sh.name, err)
	}
	if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("excel: %s header style: %w", sh.name, err)
	}

	for i, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("excel: %s row %d: %w", sh.name, i+2, err)
		}
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return fmt.Errorf("excel: %s row %d: %w", sh.name, i+2, err)
		}
	}

	for i, w := range sh.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.name, col, col, w); err != nil {
			return fmt.Errorf("excel: %s width: %w", sh.name, err)
		}
	}
	return nil
}

func sitesSheet(sites []models.Site) sheet {
	sh := sheet{
		name:   SheetSites,
		header: []string{"Name", "Region", "City", "District", "Website", "Sitemap", "Active"},
		widths: []float64{30, 24, 18, 18, 36, 40, 8},
	}
	for _, s := range sites {
		sh.rows = append(sh.rows, []any{s.Name, s.Region, s.City, s.District, s.Website, s.SitemapURL, yesNo(s.Active)})
	}
	return sh
}

func queriesSheet(queries []models.Query) sheet {
	sh := sheet{
		name:   SheetQueries,
		header: []string{"Query", "Category", "Description", "Priority", "Active"},
		widths: []float64{30, 18, 40, 10, 8},
	}
	for _, q := range queries {
		sh.rows = append(sh.rows, []any{q.Text, q.Category, q.Description, q.Priority, yesNo(q.Active)})
	}
	return sh
}

func resultsSheet(results []models.MonitoringResult) sheet {
	sh := sheet{
		name: SheetResults,
		header: []string{
			"Date", "Site", "District", "Query", "Status", "Relevance",
			"URL", "Title", "Content", "Analysis", "Error",
		},
		widths: []float64{18, 30, 18, 24, 10, 10, 40, 40, 60, 60, 30},
	}
	for _, r := range results {
		sh.rows = append(sh.rows, []any{
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.SiteName,
			r.District,
			r.QueryText,
			r.Status,
			r.RelevanceScore,
			r.URL,
			r.PageTitle,
			cutCell(r.Content),
			r.Analysis,
			r.ErrorMessage,
		})
	}
	return sh
}

func districtsSheet(districts []models.DistrictCount) sheet {
	sh := sheet{
		name:   SheetDistricts,
		header: []string{"District", "Sites", "Active"},
		widths: []float64{30, 10, 10},
	}
	for _, d := range districts {
		name := d.District
		if strings.TrimSpace(name) == "" {
			name = "(none)"
		}
		sh.rows = append(sh.rows, []any{name, d.Total, d.Active})
	}
	return sh
}

func cutCell(s string) string {
	if utf8.RuneCountInString(s) <= maxCellContent {
		return s
	}
	return string([]rune(s)[:maxCellContent]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
