package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

// blockingService reports one site, then waits until the run is cancelled or
// released.
type blockingService struct {
	release chan struct{}
	err     error
}

func (b *blockingService) Run(ctx context.Context, req Request, ctl *scraper.RunControl, onProgress scraper.ProgressFunc) (*models.MonitoringSession, scraper.BatchStats, error) {
	ms := &models.MonitoringSession{ID: uuid.New(), Status: models.SessionRunning, SitesCount: 2}
	req.OnStart(ms)
	onProgress(1, 2, scraper.SiteOutcome{Site: scraper.SiteTarget{Name: "first"}, Status: scraper.StatusNoData})

	for !ctl.Cancelled() {
		select {
		case <-b.release:
			ms.Status = models.SessionCompleted
			return ms, scraper.BatchStats{Total: 2, Completed: 2}, b.err
		case <-ctx.Done():
			ms.Status = models.SessionCancelled
			return ms, scraper.BatchStats{Total: 2, Completed: 1}, nil
		case <-time.After(5 * time.Millisecond):
		}
	}
	ms.Status = models.SessionCancelled
	return ms, scraper.BatchStats{Total: 2, Completed: 1, Cancelled: 1}, nil
}

func TestRunner_SingleActiveRun(t *testing.T) {
	svc := &blockingService{release: make(chan struct{})}
	r := NewRunner(context.Background(), svc)

	require.NoError(t, r.Start(Request{}))
	assert.ErrorIs(t, r.Start(Request{}), ErrRunInProgress)

	require.Eventually(t, func() bool {
		return r.Snapshot().Completed == 1
	}, time.Second, 5*time.Millisecond)

	snap := r.Snapshot()
	assert.True(t, snap.Running)
	require.NotNil(t, snap.SessionID)
	assert.Equal(t, 2, snap.Total)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "first", snap.Events[0].Site)

	close(svc.release)
	require.NoError(t, r.Wait(context.Background()))

	snap = r.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, models.SessionCompleted, snap.Status)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 2, snap.Stats.Completed)
	assert.NotNil(t, snap.FinishedAt)

	// A new run may start once the previous one has finished.
	svc.release = make(chan struct{})
	require.NoError(t, r.Start(Request{}))
	close(svc.release)
	require.NoError(t, r.Wait(context.Background()))
}

func TestRunner_Cancel(t *testing.T) {
	r := NewRunner(context.Background(), &blockingService{release: make(chan struct{})})
	assert.False(t, r.Cancel(), "nothing to cancel")

	require.NoError(t, r.Start(Request{}))
	require.Eventually(t, func() bool { return r.Snapshot().SessionID != nil }, time.Second, 5*time.Millisecond)
	assert.True(t, r.Cancel())
	require.NoError(t, r.Wait(context.Background()))

	snap := r.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, models.SessionCancelled, snap.Status)
}

func TestRunner_ReportsError(t *testing.T) {
	svc := &blockingService{release: make(chan struct{}), err: errors.New("ai: unauthorized")}
	r := NewRunner(context.Background(), svc)
	require.NoError(t, r.Start(Request{}))
	close(svc.release)
	require.NoError(t, r.Wait(context.Background()))
	assert.Equal(t, "ai: unauthorized", r.Snapshot().Error)
}

func TestRunner_EventsBounded(t *testing.T) {
	r := NewRunner(context.Background(), &blockingService{})
	r.current.Running = true
	for i := range maxEvents + 10 {
		r.record(i+1, maxEvents+10, scraper.SiteOutcome{Status: scraper.StatusNoData})
	}
	snap := r.Snapshot()
	assert.Len(t, snap.Events, maxEvents)
	assert.Equal(t, maxEvents+10, snap.Completed)
}
