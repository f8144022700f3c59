package models

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DayCount is the number of results created on one day.
type DayCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// SiteRank is a site with its success count.
type SiteRank struct {
	Name      string `json:"name"`
	District  string `json:"district"`
	Successes int    `json:"successes"`
}

// Overview is the dashboard statistics summary.
type Overview struct {
	SitesTotal    int                `json:"sites_total"`
	SitesActive   int                `json:"sites_active"`
	QueriesActive int                `json:"queries_active"`
	Districts     []DistrictCount    `json:"districts"`
	Today         map[string]int     `json:"today"`
	Daily         []DayCount         `json:"daily"`
	TopSites      []SiteRank         `json:"top_sites"`
	LastSession   *MonitoringSession `json:"last_session,omitempty"`
}

// StatsStore computes aggregate statistics.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Overview gathers site counts, today's results by status, daily totals for
// the last 7 days, the 5 most successful sites over 30 days and the latest
// monitoring session.
func (s *StatsStore) Overview(ctx context.Context) (*Overview, error) {
	ov := &Overview{Today: map[string]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE active),
		       (SELECT count(*) FROM search_queries WHERE active)
		FROM sites
	`).Scan(&ov.SitesTotal, &ov.SitesActive, &ov.QueriesActive)
	if err != nil {
		return nil, fmt.Errorf("stats sites: %w", err)
	}

	ov.Districts, err = NewSiteStore(s.pool).Districts(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats districts: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*)
		FROM monitoring_results
		WHERE created_at >= date_trunc('day', now())
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("stats today: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats today scan: %w", err)
		}
		ov.Today[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats today: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, count(*)
		FROM monitoring_results
		WHERE created_at >= date_trunc('day', now()) - interval '6 days'
		GROUP BY day
		ORDER BY day
	`)
	if err != nil {
		return nil, fmt.Errorf("stats daily: %w", err)
	}
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats daily scan: %w", err)
		}
		ov.Daily = append(ov.Daily, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats daily: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT s.name, s.district, count(*) AS successes
		FROM monitoring_results r
		JOIN sites s ON s.id = r.site_id
		WHERE r.status = 'success' AND r.created_at >= now() - interval '30 days'
		GROUP BY s.id, s.name, s.district
		ORDER BY successes DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("stats top sites: %w", err)
	}
	for rows.Next() {
		var r SiteRank
		if err := rows.Scan(&r.Name, &r.District, &r.Successes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats top sites scan: %w", err)
		}
		ov.TopSites = append(ov.TopSites, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats top sites: %w", err)
	}

	sessions, err := NewMonitoringSessionStore(s.pool).List(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("stats last session: %w", err)
	}
	if len(sessions) > 0 {
		ov.LastSession = &sessions[0]
	}

	return ov, nil
}
