package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

func TestWriteWorkbook(t *testing.T) {
	d := WorkbookData{
		Sites:   []models.Site{{Name: "Station", District: "CFD", Website: "https://s.example", Active: true}},
		Queries: []models.Query{{Text: "budget", Priority: 2, Active: true}},
		Results: []models.MonitoringResult{{
			SiteName:  "Station",
			QueryText: "budget",
			Status:    models.ResultSuccess,
			Content:   strings.Repeat("я", 800),
			CreatedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		}},
		Districts: []models.DistrictCount{{District: "CFD", Total: 3, Active: 2}, {Total: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, d))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSites, SheetQueries, SheetResults, SheetDistricts}, f.GetSheetList())

	rows, err := f.GetRows(SheetSites)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, "Station", rows[1][0])
	assert.Equal(t, "yes", rows[1][6])

	rows, err = f.GetRows(SheetResults)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-05-01 10:30", rows[1][0])
	content := rows[1][8]
	assert.Equal(t, maxCellContent+3, len([]rune(content)))
	assert.True(t, strings.HasSuffix(content, "..."))

	rows, err = f.GetRows(SheetDistricts)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"CFD", "3", "2"}, rows[1])
	assert.Equal(t, "(none)", rows[2][0])
}

func TestWriteWorkbook_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, WorkbookData{}))
	assert.NotZero(t, buf.Len())
}
