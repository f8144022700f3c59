package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Saul-Punybz/regionwatch/internal/app"
	"github.com/Saul-Punybz/regionwatch/internal/monitor"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

func runCmd() *cobra.Command {
	var (
		window      scraper.WindowSpec
		name        string
		district    string
		siteIDs     []string
		queryIDs    []string
		concurrency int
		noAnalysis  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitoring session and store its results",
		Long: `Run one monitoring session over the active sites and queries.

The first interrupt stops admitting new sites and lets the ones in flight
finish; a second interrupt aborts immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := window.Resolve(time.Now()); err != nil {
				return err
			}
			sites, err := parseUUIDs(siteIDs)
			if err != nil {
				return fmt.Errorf("--site: %w", err)
			}
			queries, err := parseUUIDs(queryIDs)
			if err != nil {
				return fmt.Errorf("--query: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if window.Mode == "" {
				def := app.DefaultWindow(a.Config.Monitor)
				if window.Days == 0 {
					window.Days = def.Days
				}
				window.Mode = def.Mode
			}

			ctl := scraper.NewRunControl()
			stopSignals := cancelOnSignals(ctl, cancel, cmd.ErrOrStderr())
			defer stopSignals()

			out := cmd.OutOrStdout()
			req := monitor.Request{
				Name:        name,
				Window:      window,
				District:    district,
				SiteIDs:     sites,
				QueryIDs:    queries,
				Concurrency: concurrency,
				NoAnalysis:  noAnalysis,
			}
			session, stats, err := a.Service.Run(ctx, req, ctl, func(completed, total int, o scraper.SiteOutcome) {
				fmt.Fprintln(out, progressLine(completed, total, o))
			})
			if session != nil {
				printSummary(out, session.Name, session.Status, stats)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&window.Mode, "mode", "", "window mode: recent, yesterday, date or range (default from MONITOR_WINDOW_MODE)")
	f.IntVar(&window.Days, "days", 0, "number of recent days for --mode recent")
	f.StringVar(&window.Date, "date", "", "day for --mode date (YYYY-MM-DD)")
	f.StringVar(&window.From, "from", "", "first day for --mode range (YYYY-MM-DD)")
	f.StringVar(&window.To, "to", "", "last day for --mode range (YYYY-MM-DD)")
	f.StringVar(&name, "name", "", "session name")
	f.StringVar(&district, "district", "", "only sites of this district")
	f.StringSliceVar(&siteIDs, "site", nil, "only these site IDs")
	f.StringSliceVar(&queryIDs, "query", nil, "only these query IDs")
	f.IntVarP(&concurrency, "concurrency", "n", 0, fmt.Sprintf("sites processed at once (max %d)", scraper.MaxConcurrency))
	f.BoolVar(&noAnalysis, "no-analysis", false, "skip the external analysis step")

	return cmd
}

// cancelOnSignals maps the first interrupt to a cooperative cancel and the
// second to an immediate abort. The returned func stops listening.
func cancelOnSignals(ctl *scraper.RunControl, abort context.CancelFunc, w io.Writer) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	stop := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(w, "cancelling: waiting for sites in flight (interrupt again to abort)")
			ctl.Cancel()
		case <-stop:
			return
		}
		select {
		case <-sigCh:
			abort()
		case <-stop:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}

func progressLine(completed, total int, o scraper.SiteOutcome) string {
	line := fmt.Sprintf("[%d/%d] %-40s %-8s", completed, total, scraper.TruncateRunes(o.Site.Name, 40), o.Status)
	switch o.Status {
	case scraper.StatusError:
		line += " " + o.Error
	default:
		line += fmt.Sprintf(" %d matches / %d candidates", len(o.Matches), o.Candidates)
	}
	return line
}

func printSummary(w io.Writer, name, status string, s scraper.BatchStats) {
	fmt.Fprintf(w, "\nsession %q %s\n", name, status)
	fmt.Fprintf(w, "  sites:     %d of %d processed (%d cancelled)\n", s.Completed, s.Total, s.Cancelled)
	fmt.Fprintf(w, "  success:   %d\n", s.Success)
	fmt.Fprintf(w, "  no data:   %d\n", s.NoData)
	fmt.Fprintf(w, "  errors:    %d\n", s.Error)
	fmt.Fprintf(w, "  matches:   %d\n", s.TotalMatches)
	fmt.Fprintf(w, "  duration:  %s (%s per site)\n", s.Elapsed.Round(time.Second), s.AvgPerSite.Round(time.Millisecond))
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}
