// Command regionwatch is the operator CLI: it runs monitoring sessions from
// the terminal, imports and exports the site list, and performs maintenance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Saul-Punybz/regionwatch/internal/app"
	"github.com/Saul-Punybz/regionwatch/internal/config"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:           "regionwatch",
		Short:         "Monitor regional broadcaster websites for keyword mentions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogger()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		runCmd(),
		sitesCmd(),
		exportCmd(),
		backupCmd(),
		cleanupCmd(),
		usersCmd(),
		scheduleCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openApp loads the configuration and connects to the database.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, config.Load())
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}
