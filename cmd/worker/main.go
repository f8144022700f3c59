// Command worker runs the regionwatch scheduler. It starts the periodic
// monitoring run, prunes old results and expired logins, and uploads database
// snapshots to object storage.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Saul-Punybz/regionwatch/internal/app"
	"github.com/Saul-Punybz/regionwatch/internal/config"
	"github.com/Saul-Punybz/regionwatch/internal/monitor"
	"github.com/Saul-Punybz/regionwatch/internal/storage"
)

func main() {
	// Structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("worker: starting regionwatch worker")

	cfg := config.Load()

	// Root context, cancelled on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("worker: initialization failed", "err", err)
		os.Exit(1)
	}
	slog.Info("worker: monitor configured", "settings", a.Describe())

	// Track in-flight jobs for graceful shutdown.
	var wg sync.WaitGroup

	// A slow monitoring run must not overlap with the next tick.
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))

	var runMu sync.Mutex
	runMonitoring := func(trigger string) {
		wg.Add(1)
		defer wg.Done()

		if !runMu.TryLock() {
			slog.Warn("cron: monitoring run skipped, previous run still active", "trigger", trigger)
			return
		}
		defer runMu.Unlock()

		jobCtx, jobCancel := context.WithTimeout(ctx, 6*time.Hour)
		defer jobCancel()

		slog.Info("cron: monitoring run triggered", "trigger", trigger)
		req := monitor.Request{Name: "Scheduled monitoring", Window: app.DefaultWindow(cfg.Monitor)}
		session, _, err := a.Service.Run(jobCtx, req, nil, nil)
		switch {
		case errors.Is(err, monitor.ErrNoSites), errors.Is(err, monitor.ErrNoQueries):
			slog.Warn("cron: monitoring run skipped", "reason", err)
		case err != nil:
			slog.Error("cron: monitoring run failed", "err", err)
		default:
			slog.Info("cron: monitoring run finished", "session", session.ID, "status", session.Status)
		}
	}

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"monitoring", cfg.Monitor.Schedule, func() { runMonitoring("schedule") }},
		{"backup", cfg.Backup.Schedule, func() {
			wg.Add(1)
			defer wg.Done()

			jobCtx, jobCancel := context.WithTimeout(ctx, 30*time.Minute)
			defer jobCancel()

			store, err := a.BackupStore()
			if errors.Is(err, storage.ErrNotConfigured) {
				slog.Debug("cron: backup skipped, storage not configured")
				return
			}
			slog.Info("cron: backup job triggered")
			if _, err := monitor.Backup(jobCtx, a.SnapshotSources(), store, a.Logs, cfg.Backup.Keep); err != nil {
				slog.Error("cron: backup failed", "err", err)
			}
		}},
		{"result cleanup", "30 2 * * *", func() {
			wg.Add(1)
			defer wg.Done()

			jobCtx, jobCancel := context.WithTimeout(ctx, 30*time.Minute)
			defer jobCancel()

			slog.Info("cron: result cleanup job triggered")
			if _, err := monitor.CleanupOldResults(jobCtx, a.Results, a.Logs, cfg.Monitor.RetentionDays); err != nil {
				slog.Error("cron: result cleanup failed", "err", err)
			}
		}},
		{"session cleanup", "0 4 * * *", func() {
			wg.Add(1)
			defer wg.Done()

			jobCtx, jobCancel := context.WithTimeout(ctx, 5*time.Minute)
			defer jobCancel()

			slog.Info("cron: session cleanup job triggered")
			if _, err := monitor.PruneAuthSessions(jobCtx, a.AuthSessions); err != nil {
				slog.Error("cron: session cleanup failed", "err", err)
			}
		}},
	}

	for _, job := range jobs {
		if _, err := c.AddFunc(job.schedule, job.run); err != nil {
			slog.Error("worker: add cron job", "job", job.name, "schedule", job.schedule, "err", err)
			os.Exit(1)
		}
	}

	// Start the cron scheduler.
	c.Start()
	slog.Info("worker: cron scheduler started",
		"jobs", len(c.Entries()),
		"monitor_schedule", cfg.Monitor.Schedule,
	)

	if cfg.Monitor.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Small delay to let everything settle.
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			runMonitoring("startup")
		}()
	}

	// ── Graceful Shutdown ──────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	slog.Info("worker: received shutdown signal", "signal", sig.String())

	// Stop accepting new cron jobs.
	slog.Info("worker: stopping cron scheduler")
	cronCtx := c.Stop()

	// Cancel the root context to signal all in-flight jobs to stop. A
	// cancelled monitoring run still finalizes its session.
	cancel()

	select {
	case <-cronCtx.Done():
		slog.Info("worker: cron scheduler stopped")
	case <-time.After(30 * time.Second):
		slog.Warn("worker: cron scheduler stop timed out")
	}

	// Wait for all in-flight goroutines.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker: all in-flight jobs complete")
	case <-time.After(60 * time.Second):
		slog.Warn("worker: timed out waiting for in-flight jobs")
	}

	a.Close()
	slog.Info("worker: shutdown complete")
}
