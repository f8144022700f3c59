package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/regionwatch/internal/ai"
	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

type fakeSites struct {
	sites  []models.Site
	filter models.SiteFilter
}

func (f *fakeSites) List(_ context.Context, filter models.SiteFilter) ([]models.Site, error) {
	f.filter = filter
	return f.sites, nil
}

type fakeQueries struct {
	queries []models.Query
}

func (f *fakeQueries) List(_ context.Context, _ bool, _ []uuid.UUID) ([]models.Query, error) {
	return f.queries, nil
}

type fakeSessions struct {
	created   []*models.MonitoringSession
	finalized []*models.MonitoringSession
}

func (f *fakeSessions) Create(_ context.Context, ms *models.MonitoringSession) error {
	ms.ID = uuid.New()
	ms.StartedAt = time.Now()
	f.created = append(f.created, ms)
	return nil
}

func (f *fakeSessions) Finalize(_ context.Context, ms *models.MonitoringSession) error {
	cp := *ms
	f.finalized = append(f.finalized, &cp)
	return nil
}

type fakeResults struct {
	mu      sync.Mutex
	results []models.MonitoringResult
	failAt  int // 1-based write that fails; 0 never fails
}

func (f *fakeResults) Create(_ context.Context, r *models.MonitoringResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.results)+1 == f.failAt {
		return errors.New("connection reset")
	}
	f.results = append(f.results, *r)
	return nil
}

type fakeLogs struct {
	entries []string
}

func (f *fakeLogs) Add(_ context.Context, level, module, message string) error {
	f.entries = append(f.entries, level+" "+module+": "+message)
	return nil
}

// scriptedEngine replays fixed outcomes in order, honouring cancellation
// between sites.
type scriptedEngine struct {
	outcomes []scraper.SiteOutcome
	keywords []string
	opts     scraper.BatchOptions
}

func (e *scriptedEngine) RunBatch(_ context.Context, sites []scraper.SiteTarget, keywords []string, _ scraper.DateRange, opts scraper.BatchOptions) scraper.BatchStats {
	e.keywords = keywords
	e.opts = opts
	stats := scraper.BatchStats{Total: len(sites)}
	for i, o := range e.outcomes {
		if opts.Control.Cancelled() {
			break
		}
		stats.Completed++
		opts.OnProgress(i+1, len(sites), o)
	}
	stats.Cancelled = stats.Total - stats.Completed
	return stats
}

type fakeAnalyzer struct {
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text, _ string) (string, ai.Usage, error) {
	f.calls++
	if f.err != nil {
		return "", ai.Usage{}, f.err
	}
	return "summary of " + text[:10], ai.Usage{Model: "test", TotalTokens: 42}, nil
}
