package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Site outcome statuses.
const (
	StatusSuccess = "success"
	StatusNoData  = "no_data"
	StatusError   = "error"
)

const (
	// DefaultConcurrency is the number of sites processed at once.
	DefaultConcurrency = 20

	// MaxConcurrency is the upper clamp for user-supplied concurrency.
	MaxConcurrency = 100

	// DefaultMaxArticles is the number of sitemap entries fetched per site.
	DefaultMaxArticles = 50
)

var (
	ErrNoWebsite = errors.New("no website configured")
	ErrNoSitemap = errors.New("sitemap not found")
	ErrCancelled = errors.New("run cancelled")
)

// SiteResolver locates a site's sitemap.
type SiteResolver interface {
	Resolve(ctx context.Context, baseURL, knownSitemapURL string) (ResolvedSitemap, bool)
}

// TreeParser expands a sitemap into leaf entries.
type TreeParser interface {
	Parse(ctx context.Context, root ResolvedSitemap, window *DateRange) []LeafEntry
}

// ArticleMatcher fetches one page and tests it for keywords.
type ArticleMatcher interface {
	FetchAndMatch(ctx context.Context, pageURL string, keywords []string) (*MatchRecord, error)
}

// SiteTarget is the part of a monitored site the engine needs.
type SiteTarget struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Website    string    `json:"website"`
	SitemapURL string    `json:"sitemap_url,omitempty"`
}

// SiteOutcome is the result of processing one site.
type SiteOutcome struct {
	Site       SiteTarget    `json:"site"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	SitemapURL string        `json:"sitemap_url,omitempty"`
	Candidates int           `json:"candidates"`
	Matches    []MatchRecord `json:"matches,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ProgressFunc receives each finished site in completion order.
type ProgressFunc func(completed, total int, outcome SiteOutcome)

// RunControl is the handle shared between a running batch and whoever
// started it. Cancel is cooperative: sites not yet started are skipped and no
// new article fetches begin, but in-flight requests finish.
type RunControl struct {
	cancelled atomic.Bool
	completed atomic.Int64
	total     atomic.Int64
}

// NewRunControl returns a fresh control handle.
func NewRunControl() *RunControl {
	return &RunControl{}
}

// Cancel asks the batch to stop.
func (c *RunControl) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (c *RunControl) Cancelled() bool {
	return c != nil && c.cancelled.Load()
}

type controlKey struct{}

// withControl attaches ctl to ctx so the resolver and the parser can stop
// between requests without tearing down requests already in flight.
func withControl(ctx context.Context, ctl *RunControl) context.Context {
	return context.WithValue(ctx, controlKey{}, ctl)
}

// stopped reports whether ctx is done or the run it carries was cancelled.
func stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	ctl, _ := ctx.Value(controlKey{}).(*RunControl)
	return ctl.Cancelled()
}

// Progress returns the number of finished sites and the batch size.
func (c *RunControl) Progress() (completed, total int) {
	return int(c.completed.Load()), int(c.total.Load())
}

// BatchOptions tunes one RunBatch call.
type BatchOptions struct {
	Concurrency int
	MaxArticles int
	Control     *RunControl
	OnProgress  ProgressFunc
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Concurrency > MaxConcurrency {
		o.Concurrency = MaxConcurrency
	}
	if o.MaxArticles <= 0 {
		o.MaxArticles = DefaultMaxArticles
	}
	if o.Control == nil {
		o.Control = NewRunControl()
	}
	return o
}

// BatchStats aggregates a finished batch.
type BatchStats struct {
	Total        int           `json:"total"`
	Completed    int           `json:"completed"`
	Success      int           `json:"success"`
	NoData       int           `json:"no_data"`
	Error        int           `json:"error"`
	Cancelled    int           `json:"cancelled"`
	TotalMatches int           `json:"total_matches"`
	Elapsed      time.Duration `json:"elapsed"`
	AvgPerSite   time.Duration `json:"avg_per_site"`
}

// Orchestrator runs the discovery pipeline over many sites.
type Orchestrator struct {
	resolver SiteResolver
	parser   TreeParser
	matcher  ArticleMatcher

	// hostLimit caps the article fetches of one site in flight at once and
	// equals the transport's per-host connection cap: a request must not
	// start its timeout while queued for a connection. Zero leaves only the
	// batch concurrency.
	hostLimit int
}

// NewOrchestrator wires the three pipeline stages together.
func NewOrchestrator(resolver SiteResolver, parser TreeParser, matcher ArticleMatcher) *Orchestrator {
	return &Orchestrator{resolver: resolver, parser: parser, matcher: matcher}
}

// NewDefaultOrchestrator builds the standard pipeline on top of one Fetcher.
func NewDefaultOrchestrator(f *Fetcher, maxDepth, maxEntries int) *Orchestrator {
	parser := NewParser(f)
	if maxDepth > 0 {
		parser.MaxDepth = maxDepth
	}
	if maxEntries > 0 {
		parser.MaxEntries = maxEntries
	}
	o := NewOrchestrator(NewResolver(f), parser, NewMatcher(f))
	o.hostLimit = f.Options().PerHostConns
	return o
}

// RunBatch processes sites concurrently, at most opts.Concurrency at a time.
// OnProgress is called from the calling goroutine once per finished site.
// A failing site never affects the others.
func (o *Orchestrator) RunBatch(ctx context.Context, sites []SiteTarget, keywords []string, window DateRange, opts BatchOptions) BatchStats {
	opts = opts.withDefaults()
	ctl := opts.Control
	start := time.Now()
	total := len(sites)
	ctl.total.Store(int64(total))
	ctl.completed.Store(0)

	slog.Info("orchestrator: batch starting",
		"sites", total,
		"keywords", len(keywords),
		"window", window.String(),
		"concurrency", opts.Concurrency,
	)

	results := make(chan SiteOutcome)
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	go func() {
		defer close(results)
	admit:
		for _, site := range sites {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break admit
			}
			if ctl.Cancelled() || ctx.Err() != nil {
				<-sem
				break
			}

			wg.Add(1)
			go func(site SiteTarget) {
				defer wg.Done()
				defer func() { <-sem }()
				results <- o.processSite(ctx, site, keywords, window, opts)
			}(site)
		}
		wg.Wait()
	}()

	stats := BatchStats{Total: total}
	var siteTime time.Duration
	for outcome := range results {
		stats.Completed++
		switch outcome.Status {
		case StatusSuccess:
			stats.Success++
		case StatusNoData:
			stats.NoData++
		default:
			stats.Error++
		}
		stats.TotalMatches += len(outcome.Matches)
		siteTime += outcome.Elapsed

		completed := int(ctl.completed.Add(1))
		if opts.OnProgress != nil {
			opts.OnProgress(completed, total, outcome)
		}
	}

	stats.Cancelled = total - stats.Completed
	stats.Elapsed = time.Since(start)
	if stats.Completed > 0 {
		stats.AvgPerSite = siteTime / time.Duration(stats.Completed)
	}

	slog.Info("orchestrator: batch complete",
		"completed", stats.Completed,
		"success", stats.Success,
		"no_data", stats.NoData,
		"error", stats.Error,
		"cancelled", stats.Cancelled,
		"matches", stats.TotalMatches,
		"duration", stats.Elapsed.Round(time.Millisecond),
	)
	return stats
}

func (o *Orchestrator) processSite(ctx context.Context, site SiteTarget, keywords []string, window DateRange, opts BatchOptions) (out SiteOutcome) {
	start := time.Now()
	out = SiteOutcome{Site: site}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: site panicked", "site", site.Name, "panic", r)
			out.Status = StatusError
			out.Error = fmt.Sprintf("internal error: %v", r)
			out.Matches = nil
		}
		out.Elapsed = time.Since(start)
	}()

	if strings.TrimSpace(site.Website) == "" {
		out.Status = StatusError
		out.Error = ErrNoWebsite.Error()
		return out
	}

	ctx = withControl(ctx, opts.Control)

	resolved, ok := o.resolver.Resolve(ctx, site.Website, site.SitemapURL)
	if !ok {
		out.Status = StatusError
		out.Error = ErrNoSitemap.Error()
		if stopped(ctx) {
			out.Error = ErrCancelled.Error()
		}
		return out
	}
	out.SitemapURL = resolved.URL

	entries := o.parser.Parse(ctx, resolved, &window)
	if len(entries) > opts.MaxArticles {
		entries = entries[:opts.MaxArticles]
	}
	out.Candidates = len(entries)

	matches, err := o.matchEntries(ctx, entries, keywords, opts)
	if err != nil {
		out.Status = StatusError
		out.Error = err.Error()
		return out
	}

	out.Matches = matches
	if len(matches) == 0 {
		out.Status = StatusNoData
	} else {
		out.Status = StatusSuccess
	}

	slog.Debug("orchestrator: site done",
		"site", site.Name,
		"status", out.Status,
		"candidates", out.Candidates,
		"matches", len(matches),
	)
	return out
}

// matchEntries fetches the candidate pages in parallel and returns the
// matches in sitemap order.
func (o *Orchestrator) matchEntries(ctx context.Context, entries []LeafEntry, keywords []string, opts BatchOptions) ([]MatchRecord, error) {
	found := make([]*MatchRecord, len(entries))

	limit := opts.Concurrency
	if o.hostLimit > 0 && o.hostLimit < limit {
		limit = o.hostLimit
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, e := range entries {
		if opts.Control.Cancelled() {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("internal error: %v", r)
				}
			}()
			if opts.Control.Cancelled() {
				return nil
			}
			rec, err := o.matcher.FetchAndMatch(gctx, e.URL, keywords)
			if err != nil {
				return err
			}
			if rec != nil {
				rec.Date = e.Date
				found[i] = rec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]MatchRecord, 0, len(found))
	for _, rec := range found {
		if rec != nil {
			matches = append(matches, *rec)
		}
	}
	return matches, nil
}
