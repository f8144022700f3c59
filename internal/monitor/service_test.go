package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/regionwatch/internal/ai"
	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

type fixture struct {
	sites    *fakeSites
	queries  *fakeQueries
	sessions *fakeSessions
	results  *fakeResults
	logs     *fakeLogs
	engine   *scriptedEngine
	analyzer *fakeAnalyzer
}

func newFixture(nSites int, queries ...string) *fixture {
	f := &fixture{
		sites:    &fakeSites{},
		queries:  &fakeQueries{},
		sessions: &fakeSessions{},
		results:  &fakeResults{},
		logs:     &fakeLogs{},
		engine:   &scriptedEngine{},
		analyzer: &fakeAnalyzer{},
	}
	for i := range nSites {
		f.sites.sites = append(f.sites.sites, models.Site{
			ID:      uuid.New(),
			Name:    fmt.Sprintf("site-%d", i),
			Website: fmt.Sprintf("https://site%d.example", i),
			Active:  true,
		})
	}
	for _, q := range queries {
		f.queries.queries = append(f.queries.queries, models.Query{ID: uuid.New(), Text: q, Active: true})
	}
	return f
}

func (f *fixture) service(analysis bool) *Service {
	var analyzer ai.Analyzer
	if f.analyzer != nil {
		analyzer = f.analyzer
	}
	return NewService(Stores{
		Sites:    f.sites,
		Queries:  f.queries,
		Sessions: f.sessions,
		Results:  f.results,
		Logs:     f.logs,
	}, f.engine, analyzer, Options{Concurrency: 4, MaxArticles: 50, Analysis: analysis})
}

func (f *fixture) target(i int) scraper.SiteTarget {
	s := f.sites.sites[i]
	return scraper.SiteTarget{ID: s.ID, Name: s.Name, Website: s.Website}
}

func match(url, title string, day int, keywords ...string) scraper.MatchRecord {
	d := time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
	return scraper.MatchRecord{URL: url, Title: title, Date: &d, MatchedKeywords: keywords, Snippet: "... " + title + " ..."}
}

func TestRun_PersistsOneResultPerSiteAndQuery(t *testing.T) {
	f := newFixture(3, "budget", "flood")
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusSuccess, Candidates: 3, Matches: []scraper.MatchRecord{
			match("https://site0.example/a", "Budget news", 2, "budget"),
			match("https://site0.example/b", "More budget", 3, "budget"),
		}},
		{Site: f.target(1), Status: scraper.StatusNoData, Candidates: 5},
		{Site: f.target(2), Status: scraper.StatusError, Error: scraper.ErrNoSitemap.Error()},
	}

	var progress []int
	session, stats, err := f.service(true).Run(context.Background(), Request{
		Window: scraper.WindowSpec{Mode: scraper.ModeRecent, Days: 3},
	}, nil, func(completed, _ int, _ scraper.SiteOutcome) {
		progress = append(progress, completed)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, []string{"budget", "flood"}, f.engine.keywords)
	assert.True(t, f.sites.filter.ActiveOnly)

	// site0: success for budget, no_data for flood; site1: 2x no_data; site2: 1 error
	require.Len(t, f.results.results, 5)
	byStatus := map[string]int{}
	for _, r := range f.results.results {
		byStatus[r.Status]++
		assert.Equal(t, session.ID, r.SessionID)
	}
	assert.Equal(t, map[string]int{"success": 1, "no_data": 3, "error": 1}, byStatus)

	success := f.results.results[0]
	require.Equal(t, models.ResultSuccess, success.Status)
	assert.Equal(t, "found 2 articles mentioning 'budget'", success.Content)
	assert.InDelta(t, 0.2, success.RelevanceScore, 1e-9)
	require.Len(t, success.Articles, 2)
	assert.Equal(t, "https://site0.example/b", success.Articles[0].URL, "newest first")
	assert.Equal(t, "https://site0.example/b", success.URL)
	assert.Equal(t, models.SearchModeSitemap, success.SearchMode)
	assert.Equal(t, "summary of Site: site", success.Analysis)
	assert.Equal(t, 2, success.Metrics["articles_found"])
	assert.Equal(t, 3, success.Metrics["search_days"])
	require.NotNil(t, success.QueryID)

	errResult := f.results.results[4]
	assert.Equal(t, models.ResultError, errResult.Status)
	assert.Nil(t, errResult.QueryID)
	assert.Equal(t, "sitemap not found", errResult.ErrorMessage)
	assert.Zero(t, errResult.RelevanceScore)

	require.Len(t, f.sessions.finalized, 1)
	final := f.sessions.finalized[0]
	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 5, final.ResultsCount)
	assert.Equal(t, 1, final.SuccessCount)
	assert.Equal(t, 3, final.NoDataCount)
	assert.Equal(t, 1, final.ErrorCount)
	assert.Equal(t, "last 3 days", final.Period)
	assert.Equal(t, 1, f.analyzer.calls)
	assert.NotEmpty(t, f.logs.entries)
}

func TestRun_AnalysisFailureDegrades(t *testing.T) {
	f := newFixture(1, "budget")
	f.analyzer.err = errors.New("503 service unavailable")
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusSuccess, Matches: []scraper.MatchRecord{
			match("https://site0.example/a", "Budget", 2, "budget"),
		}},
	}

	session, _, err := f.service(true).Run(context.Background(), Request{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, session.Status)

	require.Len(t, f.results.results, 1)
	r := f.results.results[0]
	assert.Equal(t, models.ResultSuccess, r.Status)
	assert.Equal(t, models.SearchModeSitemapNoAI, r.SearchMode)
	assert.Equal(t, "1 articles found, analysis unavailable", r.Analysis)
}

func TestRun_UnauthorizedStopsRun(t *testing.T) {
	f := newFixture(3, "budget")
	f.analyzer.err = fmt.Errorf("%w: auth status 401", ai.ErrUnauthorized)
	matches := []scraper.MatchRecord{match("https://x.example/a", "Budget", 2, "budget")}
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusNoData},
		{Site: f.target(1), Status: scraper.StatusSuccess, Matches: matches},
		{Site: f.target(2), Status: scraper.StatusSuccess, Matches: matches},
	}

	ctl := scraper.NewRunControl()
	session, stats, err := f.service(true).Run(context.Background(), Request{}, ctl, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrUnauthorized)
	assert.True(t, ctl.Cancelled())
	assert.Equal(t, 2, stats.Completed)

	assert.Equal(t, models.SessionError, session.Status)
	assert.Contains(t, session.ErrorMessage, "unauthorized")
	require.Len(t, f.results.results, 1, "results written before the failure remain")
	assert.Equal(t, models.ResultNoData, f.results.results[0].Status)
}

func TestRun_WriteFailureStopsRun(t *testing.T) {
	f := newFixture(2, "budget")
	f.results.failAt = 2
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusNoData},
		{Site: f.target(1), Status: scraper.StatusNoData},
	}

	session, _, err := f.service(false).Run(context.Background(), Request{}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, models.SessionError, session.Status)
	assert.Contains(t, session.ErrorMessage, "connection reset")
	assert.Len(t, f.results.results, 1)
}

func TestRun_AnalysisOptOut(t *testing.T) {
	f := newFixture(1, "budget")
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusSuccess, Matches: []scraper.MatchRecord{
			match("https://site0.example/a", "Budget", 2, "budget"),
		}},
	}

	_, _, err := f.service(true).Run(context.Background(), Request{NoAnalysis: true}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, f.analyzer.calls)
	assert.Equal(t, models.SearchModeSitemapNoAI, f.results.results[0].SearchMode)
	assert.Empty(t, f.results.results[0].Analysis)
}

func TestRun_SuccessOutcomeWithoutRelevantMatches(t *testing.T) {
	f := newFixture(1, "budget", "flood")
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusSuccess, Matches: []scraper.MatchRecord{
			match("https://site0.example/a", "Flood", 2, "flood"),
		}},
	}

	_, _, err := f.service(false).Run(context.Background(), Request{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, f.results.results, 2)
	assert.Equal(t, models.ResultNoData, f.results.results[0].Status)
	assert.Equal(t, "no articles mentioning 'budget' found", f.results.results[0].Content)
	assert.Equal(t, models.ResultSuccess, f.results.results[1].Status)
}

func TestRun_CancelledSession(t *testing.T) {
	f := newFixture(2, "budget")
	f.engine.outcomes = []scraper.SiteOutcome{
		{Site: f.target(0), Status: scraper.StatusNoData},
		{Site: f.target(1), Status: scraper.StatusNoData},
	}
	ctl := scraper.NewRunControl()

	session, stats, err := f.service(false).Run(context.Background(), Request{}, ctl,
		func(completed, _ int, _ scraper.SiteOutcome) {
			if completed == 1 {
				ctl.Cancel()
			}
		})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, session.Status)
	assert.Equal(t, 1, stats.Completed)
	assert.Len(t, f.results.results, 1)
}

func TestRun_NothingToDo(t *testing.T) {
	f := newFixture(0, "budget")
	_, _, err := f.service(false).Run(context.Background(), Request{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoSites)
	assert.Empty(t, f.sessions.created)

	f = newFixture(1)
	_, _, err = f.service(false).Run(context.Background(), Request{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoQueries)

	f = newFixture(1, "budget")
	_, _, err = f.service(false).Run(context.Background(), Request{Window: scraper.WindowSpec{Mode: "weekly"}}, nil, nil)
	assert.Error(t, err)
}
