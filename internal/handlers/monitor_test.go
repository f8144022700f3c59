package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/regionwatch/internal/monitor"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

type fakeRunner struct {
	started []monitor.Request
	busy    bool
	snap    monitor.Snapshot
}

func (f *fakeRunner) Start(req monitor.Request) error {
	if f.busy {
		return monitor.ErrRunInProgress
	}
	f.busy = true
	f.started = append(f.started, req)
	return nil
}

func (f *fakeRunner) Snapshot() monitor.Snapshot { return f.snap }

func (f *fakeRunner) Cancel() bool { return f.busy }

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if body == "" {
		req.ContentLength = 0
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestMonitorHandler_Start(t *testing.T) {
	runner := &fakeRunner{}
	h := &MonitorHandler{Runner: runner, DefaultWindow: scraper.WindowSpec{Mode: scraper.ModeRecent, Days: 4}}

	rec := post(h.Start, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, runner.started, 1)
	assert.Equal(t, 4, runner.started[0].Window.Days, "default window applied")

	rec = post(h.Start, `{"window":{"mode":"yesterday"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	runner.busy = false
	rec = post(h.Start, `{"window":{"mode":"range","from":"2024-05-01","to":"2024-05-07"},"concurrency":500}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, scraper.MaxConcurrency, runner.started[1].Concurrency)

	runner.busy = false
	rec = post(h.Start, `{"window":{"mode":"date","date":"01.05.2024"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Start, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitorHandler_StatusAndCancel(t *testing.T) {
	runner := &fakeRunner{snap: monitor.Snapshot{Running: true, Completed: 3, Total: 10}}
	h := &MonitorHandler{Runner: runner}

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitor.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, 3, snap.Completed)
	assert.Equal(t, 10, snap.Total)

	assert.Equal(t, http.StatusConflict, post(h.Cancel, "").Code)
	runner.busy = true
	assert.Equal(t, http.StatusAccepted, post(h.Cancel, "").Code)
}
