package main

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Saul-Punybz/regionwatch/internal/config"
)

func scheduleCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "schedule [expr]",
		Short: "Validate a cron expression and print its next run times",
		Long: `Validate a standard five-field cron expression and print its next run
times. Without an argument the configured MONITOR_SCHEDULE is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := config.Load().Monitor.Schedule
			if len(args) == 1 {
				expr = args[0]
			}
			runs, err := nextRuns(expr, time.Now(), count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", expr)
			for _, t := range runs {
				fmt.Fprintf(out, "  %s\n", t.Format("Mon 2006-01-02 15:04 MST"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 5, "number of run times to print")
	return cmd
}

// nextRuns returns the next n activation times of expr after from.
func nextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	out := make([]time.Time, 0, n)
	t := from
	for range n {
		t = sched.Next(t)
		out = append(out, t)
	}
	return out, nil
}
