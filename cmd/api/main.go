// Command api starts the regionwatch HTTP API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Saul-Punybz/regionwatch/internal/app"
	"github.com/Saul-Punybz/regionwatch/internal/config"
	"github.com/Saul-Punybz/regionwatch/internal/handlers"
	"github.com/Saul-Punybz/regionwatch/internal/middleware"
	"github.com/Saul-Punybz/regionwatch/internal/monitor"
)

func main() {
	// Structured logging.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize", "err", err)
		os.Exit(1)
	}
	defer a.Close()
	slog.Info("monitor configured", "settings", a.Describe())

	// Runs outlive the request that started them; they stop on shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	runner := monitor.NewRunner(rootCtx, a.Service)

	// Handlers.
	authHandler := &handlers.AuthHandler{
		Users:          a.Users,
		Sessions:       a.AuthSessions,
		InsecureCookie: cfg.Server.InsecureCookie,
	}
	sitesHandler := &handlers.SitesHandler{
		Sites: a.Sites,
		Logs:  a.Logs,
	}
	queriesHandler := &handlers.QueriesHandler{
		Queries: a.Queries,
	}
	sessionsHandler := &handlers.SessionsHandler{
		Sessions: a.Sessions,
		Results:  a.Results,
	}
	statsHandler := &handlers.StatsHandler{
		Stats: a.Stats,
		Logs:  a.Logs,
	}
	monitorHandler := &handlers.MonitorHandler{
		Runner:        runner,
		DefaultWindow: app.DefaultWindow(cfg.Monitor),
	}
	exportHandler := &handlers.ExportHandler{
		Sites:   a.Sites,
		Queries: a.Queries,
		Results: a.Results,
	}
	adminHandler := &handlers.AdminHandler{
		Snapshot:      a.SnapshotSources(),
		Storage:       a.Storage,
		Results:       a.Results,
		Logs:          a.Logs,
		RetentionDays: cfg.Monitor.RetentionDays,
		BackupKeep:    cfg.Backup.Keep,
	}

	// Router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes.
	r.Get("/api/health", handlers.Health)
	r.Post("/api/login", authHandler.Login)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(a.AuthSessions, a.Users))

		r.Post("/api/logout", authHandler.Logout)
		r.Get("/api/me", authHandler.Me)

		// Read-only views.
		r.Get("/api/sites", sitesHandler.ListSites)
		r.Get("/api/sites/{id}", sitesHandler.GetSite)
		r.Get("/api/districts", sitesHandler.Districts)
		r.Get("/api/queries", queriesHandler.ListQueries)
		r.Get("/api/sessions", sessionsHandler.ListSessions)
		r.Get("/api/sessions/{id}", sessionsHandler.GetSession)
		r.Get("/api/results", sessionsHandler.ListResults)
		r.Get("/api/stats", statsHandler.Overview)
		r.Get("/api/logs", statsHandler.ListLogs)
		r.Get("/api/periods", handlers.Periods)
		r.Get("/api/monitor/status", monitorHandler.Status)

		// Admin only.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/api/monitor/start", monitorHandler.Start)
			r.Post("/api/monitor/cancel", monitorHandler.Cancel)

			r.Post("/api/sites", sitesHandler.CreateSite)
			r.Put("/api/sites/{id}", sitesHandler.UpdateSite)
			r.Patch("/api/sites/{id}/toggle", sitesHandler.ToggleSite)
			r.Delete("/api/sites/{id}", sitesHandler.DeleteSite)
			r.Post("/api/sites/import", sitesHandler.ImportCSV)
			r.Get("/api/sites/export", sitesHandler.ExportCSV)

			r.Post("/api/queries", queriesHandler.CreateQuery)
			r.Put("/api/queries/{id}", queriesHandler.UpdateQuery)
			r.Patch("/api/queries/{id}/toggle", queriesHandler.ToggleQuery)
			r.Delete("/api/queries/{id}", queriesHandler.DeleteQuery)

			r.Get("/api/export/xlsx", exportHandler.ExportXLSX)

			r.Post("/api/admin/backup", adminHandler.Backup)
			r.Get("/api/admin/backups", adminHandler.ListBackups)
			r.Post("/api/admin/cleanup", adminHandler.Cleanup)
		})
	})

	// Serve static frontend files if the directory exists.
	frontendDir := cfg.Server.FrontendDir
	if _, err := os.Stat(frontendDir); err == nil {
		fileServer := http.FileServer(http.Dir(frontendDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api") {
				http.NotFound(w, r)
				return
			}
			// Unknown paths fall back to index.html for SPA routing.
			path := frontendDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, frontendDir+"/index.html")
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	}

	// Start server.
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	if runner.Cancel() {
		slog.Info("waiting for the active monitoring run to stop")
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		slog.Warn("monitoring run did not stop in time", "err", err)
	}
	rootCancel()

	slog.Info("server stopped")
}
