package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

const (
	snapshotSessions = 1000
	snapshotResults  = 5000
)

// Snapshot is the JSON document uploaded as a backup.
type Snapshot struct {
	Version   int                        `json:"version"`
	CreatedAt time.Time                  `json:"created_at"`
	Sites     []models.Site              `json:"sites"`
	Queries   []models.Query             `json:"queries"`
	Sessions  []models.MonitoringSession `json:"sessions"`
	Results   []models.MonitoringResult  `json:"results"`
}

// SiteSource lists all sites.
type SiteSource interface {
	ListAll(ctx context.Context) ([]models.Site, error)
}

// QuerySource lists queries.
type QuerySource interface {
	List(ctx context.Context, activeOnly bool, ids []uuid.UUID) ([]models.Query, error)
}

// SessionSource lists monitoring sessions, newest first.
type SessionSource interface {
	List(ctx context.Context, limit int) ([]models.MonitoringSession, error)
}

// ResultSource lists monitoring results, newest first.
type ResultSource interface {
	List(ctx context.Context, f models.ResultFilter) ([]models.MonitoringResult, error)
}

// Sources groups the stores a snapshot reads from.
type Sources struct {
	Sites    SiteSource
	Queries  QuerySource
	Sessions SessionSource
	Results  ResultSource
}

// BuildSnapshot reads every site and query plus the most recent sessions and
// results.
func BuildSnapshot(ctx context.Context, src Sources) (*Snapshot, error) {
	snap := &Snapshot{Version: snapshotVersion, CreatedAt: time.Now().UTC()}

	var err error
	if snap.Sites, err = src.Sites.ListAll(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: sites: %w", err)
	}
	if snap.Queries, err = src.Queries.List(ctx, false, nil); err != nil {
		return nil, fmt.Errorf("snapshot: queries: %w", err)
	}
	if snap.Sessions, err = src.Sessions.List(ctx, snapshotSessions); err != nil {
		return nil, fmt.Errorf("snapshot: sessions: %w", err)
	}
	if snap.Results, err = src.Results.List(ctx, models.ResultFilter{Limit: snapshotResults}); err != nil {
		return nil, fmt.Errorf("snapshot: results: %w", err)
	}
	return snap, nil
}

// Marshal encodes the snapshot and checks that it decodes again.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	var check Snapshot
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, fmt.Errorf("snapshot: verify: %w", err)
	}
	if len(check.Sites) != len(s.Sites) || len(check.Results) != len(s.Results) {
		return nil, fmt.Errorf("snapshot: verify: row counts differ")
	}
	return data, nil
}
