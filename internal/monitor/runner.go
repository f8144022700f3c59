package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/regionwatch/internal/models"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

// ErrRunInProgress is returned by Start while another run is active.
var ErrRunInProgress = errors.New("monitor: a run is already in progress")

// maxEvents is the number of recent site events kept in a Snapshot.
const maxEvents = 50

// RunService is the part of Service the Runner drives.
type RunService interface {
	Run(ctx context.Context, req Request, ctl *scraper.RunControl, onProgress scraper.ProgressFunc) (*models.MonitoringSession, scraper.BatchStats, error)
}

// Event is one finished site, as shown in the live progress view.
type Event struct {
	At         time.Time `json:"at"`
	Site       string    `json:"site"`
	Status     string    `json:"status"`
	Matches    int       `json:"matches"`
	Candidates int       `json:"candidates"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of the current or last run.
type Snapshot struct {
	Running    bool                `json:"running"`
	SessionID  *uuid.UUID          `json:"session_id,omitempty"`
	Status     string              `json:"status,omitempty"`
	Completed  int                 `json:"completed"`
	Total      int                 `json:"total"`
	Events     []Event             `json:"events"`
	Stats      *scraper.BatchStats `json:"stats,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// Runner owns at most one active monitoring run and exposes its progress to
// the API.
type Runner struct {
	svc  RunService
	base context.Context

	mu      sync.Mutex
	ctl     *scraper.RunControl
	done    chan struct{}
	current Snapshot
}

// NewRunner creates a Runner. Runs started later live under base, so they
// outlive the HTTP request that started them but stop when base is cancelled.
func NewRunner(base context.Context, svc RunService) *Runner {
	return &Runner{svc: svc, base: base}
}

// Start launches req in the background. It returns ErrRunInProgress when a
// run is already active.
func (r *Runner) Start(req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.Running {
		return ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(r.base)
	started := time.Now()
	r.ctl = scraper.NewRunControl()
	r.done = make(chan struct{})
	r.current = Snapshot{Running: true, StartedAt: &started, Events: []Event{}}

	onStart := req.OnStart
	req.OnStart = func(ms *models.MonitoringSession) {
		r.mu.Lock()
		id := ms.ID
		r.current.SessionID = &id
		r.current.Status = ms.Status
		r.current.Total = ms.SitesCount
		r.mu.Unlock()
		if onStart != nil {
			onStart(ms)
		}
	}

	go r.run(ctx, cancel, req, r.ctl, r.done)
	return nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, req Request, ctl *scraper.RunControl, done chan struct{}) {
	defer close(done)
	defer cancel()

	session, stats, err := r.svc.Run(ctx, req, ctl, func(completed, total int, o scraper.SiteOutcome) {
		r.record(completed, total, o)
	})

	finished := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Running = false
	r.current.FinishedAt = &finished
	r.current.Stats = &stats
	if session != nil {
		id := session.ID
		r.current.SessionID = &id
		r.current.Status = session.Status
	}
	if err != nil {
		r.current.Error = err.Error()
		if session == nil {
			r.current.Status = models.SessionError
		}
		slog.Error("monitor: run failed", "err", err)
	}
}

func (r *Runner) record(completed, total int, o scraper.SiteOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Completed = completed
	r.current.Total = total
	r.current.Events = append(r.current.Events, Event{
		At:         time.Now(),
		Site:       o.Site.Name,
		Status:     o.Status,
		Matches:    len(o.Matches),
		Candidates: o.Candidates,
		Error:      o.Error,
	})
	if n := len(r.current.Events); n > maxEvents {
		r.current.Events = append([]Event(nil), r.current.Events[n-maxEvents:]...)
	}
}

// Snapshot returns a copy of the current run state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.current
	s.Events = make([]Event, len(r.current.Events))
	copy(s.Events, r.current.Events)
	return s
}

// Cancel asks the active run to stop. Sites already in flight finish and are
// stored. It reports whether a run was active.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.current.Running || r.ctl == nil {
		return false
	}
	r.ctl.Cancel()
	return true
}

// Wait blocks until the active run, if any, has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
