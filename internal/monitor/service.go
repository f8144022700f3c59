// Package monitor runs monitoring sessions: it loads sites and queries,
// drives the discovery engine, formats and analyzes matches per query and
// persists one result per (site, query) as each site finishes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/regionwatch/internal/ai"
	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

const logModule = "monitoring"

var (
	ErrNoSites   = errors.New("monitor: no active sites selected")
	ErrNoQueries = errors.New("monitor: no active queries selected")
)

// SiteLister loads the sites to monitor.
type SiteLister interface {
	List(ctx context.Context, f models.SiteFilter) ([]models.Site, error)
}

// QueryLister loads the queries to search for.
type QueryLister interface {
	List(ctx context.Context, activeOnly bool, ids []uuid.UUID) ([]models.Query, error)
}

// SessionWriter records the lifecycle of a monitoring session.
type SessionWriter interface {
	Create(ctx context.Context, ms *models.MonitoringSession) error
	Finalize(ctx context.Context, ms *models.MonitoringSession) error
}

// ResultWriter persists one result.
type ResultWriter interface {
	Create(ctx context.Context, r *models.MonitoringResult) error
}

// EventLog appends operator-visible log entries.
type EventLog interface {
	Add(ctx context.Context, level, module, message string) error
}

// Engine runs the discovery pipeline over a batch of sites.
type Engine interface {
	RunBatch(ctx context.Context, sites []scraper.SiteTarget, keywords []string, window scraper.DateRange, opts scraper.BatchOptions) scraper.BatchStats
}

// Stores groups the persistence collaborators of a Service.
type Stores struct {
	Sites    SiteLister
	Queries  QueryLister
	Sessions SessionWriter
	Results  ResultWriter
	Logs     EventLog
}

// Options holds service-wide defaults.
type Options struct {
	Concurrency int
	MaxArticles int
	MaxDisplay  int
	Analysis    bool
}

// Request describes one run.
type Request struct {
	Name        string             `json:"name,omitempty"`
	Window      scraper.WindowSpec `json:"window"`
	District    string             `json:"district,omitempty"`
	SiteIDs     []uuid.UUID        `json:"site_ids,omitempty"`
	QueryIDs    []uuid.UUID        `json:"query_ids,omitempty"`
	Concurrency int                `json:"concurrency,omitempty"`
	NoAnalysis  bool               `json:"no_analysis,omitempty"`

	// OnStart, when set, receives the session as soon as it is created.
	OnStart func(ms *models.MonitoringSession) `json:"-"`
}

// Service executes monitoring runs.
type Service struct {
	stores   Stores
	engine   Engine
	analyzer ai.Analyzer
	opts     Options
	now      func() time.Time
}

// NewService wires a Service. analyzer may be nil, which disables analysis.
func NewService(stores Stores, engine Engine, analyzer ai.Analyzer, opts Options) *Service {
	if opts.MaxDisplay <= 0 {
		opts.MaxDisplay = scraper.DefaultMaxDisplay
	}
	return &Service{stores: stores, engine: engine, analyzer: analyzer, opts: opts, now: time.Now}
}

// runState is owned by the goroutine calling Service.Run; the progress
// callback executes there too.
type runState struct {
	session  *models.MonitoringSession
	queries  []models.Query
	window   scraper.DateRange
	analyze  bool
	ctl      *scraper.RunControl
	fatalErr error
}

// Run executes one monitoring session. A nil ctl gets a fresh RunControl.
// onProgress, when set, is called after each site's results are stored.
//
// Expected per-site failures become results; a rejected analysis credential
// or a failed write cancels the run and finalizes the session as error.
func (s *Service) Run(ctx context.Context, req Request, ctl *scraper.RunControl, onProgress scraper.ProgressFunc) (*models.MonitoringSession, scraper.BatchStats, error) {
	if ctl == nil {
		ctl = scraper.NewRunControl()
	}
	now := s.now()

	window, err := req.Window.Resolve(now)
	if err != nil {
		return nil, scraper.BatchStats{}, err
	}

	sites, err := s.stores.Sites.List(ctx, models.SiteFilter{
		ActiveOnly: true,
		District:   req.District,
		IDs:        req.SiteIDs,
	})
	if err != nil {
		return nil, scraper.BatchStats{}, fmt.Errorf("monitor: load sites: %w", err)
	}
	if len(sites) == 0 {
		return nil, scraper.BatchStats{}, ErrNoSites
	}

	queries, err := s.stores.Queries.List(ctx, true, req.QueryIDs)
	if err != nil {
		return nil, scraper.BatchStats{}, fmt.Errorf("monitor: load queries: %w", err)
	}
	if len(queries) == 0 {
		return nil, scraper.BatchStats{}, ErrNoQueries
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Monitoring " + now.Format("02.01.2006 15:04")
	}
	session := &models.MonitoringSession{
		Name:         name,
		SearchMode:   models.SearchModeSitemap,
		Period:       req.Window.Label(window),
		DateFrom:     window.From,
		DateTo:       window.To,
		SitesCount:   len(sites),
		QueriesCount: len(queries),
		Status:       models.SessionRunning,
	}
	if err := s.stores.Sessions.Create(ctx, session); err != nil {
		return nil, scraper.BatchStats{}, fmt.Errorf("monitor: create session: %w", err)
	}
	if req.OnStart != nil {
		req.OnStart(session)
	}

	s.logEvent(ctx, models.LogInfo, fmt.Sprintf("session %q started: %d sites, %d queries, %s",
		session.Name, len(sites), len(queries), session.Period))
	slog.Info("monitor: session started",
		"session", session.ID,
		"sites", len(sites),
		"queries", len(queries),
		"window", window.String(),
	)

	st := &runState{
		session: session,
		queries: queries,
		window:  window,
		analyze: s.analyzer != nil && s.opts.Analysis && !req.NoAnalysis,
		ctl:     ctl,
	}

	targets := make([]scraper.SiteTarget, len(sites))
	for i, site := range sites {
		targets[i] = scraper.SiteTarget{
			ID:         site.ID,
			Name:       site.Name,
			Website:    site.Website,
			SitemapURL: site.SitemapURL,
		}
	}
	keywords := make([]string, len(queries))
	for i, q := range queries {
		keywords[i] = q.Text
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.opts.Concurrency
	}

	stats := s.engine.RunBatch(ctx, targets, keywords, window, scraper.BatchOptions{
		Concurrency: concurrency,
		MaxArticles: s.opts.MaxArticles,
		Control:     ctl,
		OnProgress: func(completed, total int, outcome scraper.SiteOutcome) {
			if st.fatalErr == nil {
				if err := s.persistOutcome(ctx, st, outcome); err != nil {
					st.fatalErr = err
					ctl.Cancel()
					slog.Error("monitor: run aborted", "session", session.ID, "site", outcome.Site.Name, "err", err)
				}
			}
			if onProgress != nil {
				onProgress(completed, total, outcome)
			}
		},
	})

	switch {
	case st.fatalErr != nil:
		session.Status = models.SessionError
		session.ErrorMessage = st.fatalErr.Error()
	case ctl.Cancelled() || ctx.Err() != nil:
		session.Status = models.SessionCancelled
	default:
		session.Status = models.SessionCompleted
	}

	// The session row must be closed even when ctx was cancelled.
	if err := s.stores.Sessions.Finalize(context.WithoutCancel(ctx), session); err != nil {
		slog.Error("monitor: finalize session", "session", session.ID, "err", err)
		if st.fatalErr == nil {
			st.fatalErr = fmt.Errorf("monitor: finalize session: %w", err)
		}
	}

	level := models.LogInfo
	if session.Status == models.SessionError {
		level = models.LogError
	}
	s.logEvent(context.WithoutCancel(ctx), level, fmt.Sprintf(
		"session %q %s: %d results (%d success, %d no data, %d error) in %s",
		session.Name, session.Status, session.ResultsCount, session.SuccessCount,
		session.NoDataCount, session.ErrorCount, stats.Elapsed.Round(time.Second)))
	slog.Info("monitor: session finished",
		"session", session.ID,
		"status", session.Status,
		"results", session.ResultsCount,
		"duration", stats.Elapsed.Round(time.Millisecond),
	)

	return session, stats, st.fatalErr
}

// persistOutcome writes the results for one finished site.
func (s *Service) persistOutcome(ctx context.Context, st *runState, outcome scraper.SiteOutcome) error {
	results, err := s.buildResults(ctx, st, outcome)
	if err != nil {
		return err
	}
	// Writes for a finished site complete even after ctx is cancelled.
	wctx := context.WithoutCancel(ctx)
	for i := range results {
		if err := s.stores.Results.Create(wctx, &results[i]); err != nil {
			return fmt.Errorf("monitor: store result for %s: %w", outcome.Site.Name, err)
		}
		st.session.ResultsCount++
		switch results[i].Status {
		case models.ResultSuccess:
			st.session.SuccessCount++
		case models.ResultNoData:
			st.session.NoDataCount++
		default:
			st.session.ErrorCount++
		}
	}
	return nil
}

// buildResults turns a site outcome into result rows: a single row without a
// query for an error, otherwise one row per query.
func (s *Service) buildResults(ctx context.Context, st *runState, outcome scraper.SiteOutcome) ([]models.MonitoringResult, error) {
	base := models.MonitoringResult{
		SessionID:  st.session.ID,
		SiteID:     outcome.Site.ID,
		URL:        outcome.Site.Website,
		SearchMode: models.SearchModeSitemap,
	}

	if outcome.Status == scraper.StatusError {
		r := base
		r.Status = models.ResultError
		r.ErrorMessage = outcome.Error
		r.Metrics = map[string]any{
			"processing_time": outcome.Elapsed.Seconds(),
			"search_days":     st.window.Days(),
		}
		return []models.MonitoringResult{r}, nil
	}

	out := make([]models.MonitoringResult, 0, len(st.queries))
	for _, q := range st.queries {
		qid := q.ID
		r := base
		r.QueryID = &qid

		f := scraper.Format(outcome.Matches, q.Text, s.opts.MaxDisplay)
		r.Content = f.Summary
		r.Metrics = map[string]any{
			"articles_found":  f.TotalCount,
			"candidates":      outcome.Candidates,
			"search_days":     st.window.Days(),
			"processing_time": outcome.Elapsed.Seconds(),
			"sitemap_url":     outcome.SitemapURL,
		}
		if f.TotalCount == 0 {
			r.Status = models.ResultNoData
			out = append(out, r)
			continue
		}

		r.Status = models.ResultSuccess
		r.RelevanceScore = min(float64(f.TotalCount)/10, 1)
		r.Articles = articleRefs(f.Display)
		r.URL = f.Display[0].URL
		r.PageTitle = f.Display[0].Title

		if !st.analyze {
			r.SearchMode = models.SearchModeSitemapNoAI
			out = append(out, r)
			continue
		}

		digest := scraper.ForExternalAnalysis(outcome.Matches, outcome.Site.Name, q.Text)
		text, usage, err := s.analyzer.Analyze(ctx, digest, ai.AnalysisPrompt(q.Text, outcome.Site.Name))
		switch {
		case errors.Is(err, ai.ErrUnauthorized):
			return nil, fmt.Errorf("monitor: analysis: %w", err)
		case err != nil:
			slog.Warn("monitor: analysis failed", "site", outcome.Site.Name, "query", q.Text, "err", err)
			r.SearchMode = models.SearchModeSitemapNoAI
			r.Analysis = fmt.Sprintf("%d articles found, analysis unavailable", f.TotalCount)
		default:
			r.Analysis = text
			r.Metrics["analysis"] = map[string]any{
				"model":             usage.Model,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"duration":          usage.Duration.Seconds(),
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func articleRefs(display []scraper.DisplayArticle) []models.ArticleRef {
	refs := make([]models.ArticleRef, len(display))
	for i, d := range display {
		refs[i] = models.ArticleRef{
			Title:           d.Title,
			URL:             d.URL,
			Date:            d.Date,
			Snippet:         d.Snippet,
			MatchedKeywords: d.MatchedKeywords,
		}
	}
	return refs
}

func (s *Service) logEvent(ctx context.Context, level, message string) {
	addLog(ctx, s.stores.Logs, level, logModule, message)
}
