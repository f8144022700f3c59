// Package app wires configuration, the database pool, the stores and the
// monitoring service shared by every command.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Saul-Punybz/regionwatch/internal/ai"
	"github.com/Saul-Punybz/regionwatch/internal/config"
	"github.com/Saul-Punybz/regionwatch/internal/db"
	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/monitor"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
	"github.com/Saul-Punybz/regionwatch/internal/storage"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config config.Config
	Pool   *pgxpool.Pool

	Sites        *models.SiteStore
	Queries      *models.QueryStore
	Sessions     *models.MonitoringSessionStore
	Results      *models.MonitoringResultStore
	Logs         *models.LogStore
	Stats        *models.StatsStore
	Users        *models.UserStore
	AuthSessions *models.AuthSessionStore

	Storage *storage.Client
	Service *monitor.Service
}

// New connects to the database, applies migrations and builds the stores and
// the monitoring service. The analysis provider and object storage are
// optional: a misconfiguration is logged and the feature is disabled.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Pool:         pool,
		Sites:        models.NewSiteStore(pool),
		Queries:      models.NewQueryStore(pool),
		Sessions:     models.NewMonitoringSessionStore(pool),
		Results:      models.NewMonitoringResultStore(pool),
		Logs:         models.NewLogStore(pool),
		Stats:        models.NewStatsStore(pool),
		Users:        models.NewUserStore(pool),
		AuthSessions: models.NewAuthSessionStore(pool),
	}

	a.Storage, err = storage.NewClient(ctx, cfg.S3)
	if err != nil {
		slog.Warn("app: object storage unavailable, backups disabled", "err", err)
		a.Storage = nil
	}

	analyzer, err := ai.New(cfg.AI)
	if err != nil {
		slog.Warn("app: analysis provider unavailable", "provider", cfg.AI.Provider, "err", err)
		analyzer = nil
	}

	a.Service = monitor.NewService(monitor.Stores{
		Sites:    a.Sites,
		Queries:  a.Queries,
		Sessions: a.Sessions,
		Results:  a.Results,
		Logs:     a.Logs,
	}, NewEngine(cfg.Monitor), analyzer, monitor.Options{
		Concurrency: cfg.Monitor.Concurrency,
		MaxArticles: cfg.Monitor.MaxArticles,
		MaxDisplay:  cfg.Monitor.MaxDisplay,
		Analysis:    cfg.Monitor.Analysis && analyzer != nil,
	})

	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}

// SnapshotSources returns the stores a backup snapshot reads from.
func (a *App) SnapshotSources() export.Sources {
	return export.Sources{
		Sites:    a.Sites,
		Queries:  a.Queries,
		Sessions: a.Sessions,
		Results:  a.Results,
	}
}

// BackupStore returns the configured object storage, or an error when
// backups are disabled.
func (a *App) BackupStore() (*storage.Client, error) {
	if a.Storage == nil || !a.Storage.Configured() {
		return nil, storage.ErrNotConfigured
	}
	return a.Storage, nil
}

// NewEngine builds the discovery pipeline from the monitor configuration.
func NewEngine(cfg config.MonitorConfig) *scraper.Orchestrator {
	f := scraper.NewFetcher(FetchOptions(cfg))
	return scraper.NewDefaultOrchestrator(f, cfg.SitemapDepth, cfg.SitemapCap)
}

// FetchOptions maps the monitor configuration onto the shared HTTP client.
func FetchOptions(cfg config.MonitorConfig) scraper.FetchOptions {
	return scraper.FetchOptions{
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
		MaxRedirects: cfg.MaxRedirects,
		Retries:      cfg.Retries,
		PerHostConns: cfg.PerHostConns,
	}
}

// DefaultWindow is the window used by scheduled runs and by requests that do
// not name one.
func DefaultWindow(cfg config.MonitorConfig) scraper.WindowSpec {
	return scraper.WindowSpec{Mode: cfg.WindowMode, Days: cfg.WindowDays}
}

// Describe is a one-line summary of the effective setup, logged at startup.
func (a *App) Describe() string {
	m := a.Config.Monitor
	return fmt.Sprintf("concurrency=%d per_host=%d timeout=%s max_articles=%d analysis=%t provider=%s",
		m.Concurrency, m.PerHostConns, m.Timeout, m.MaxArticles, m.Analysis, a.Config.AI.Provider)
}
