package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Monitoring session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
	SessionError     = "error"
)

// MonitoringSession records one run of the discovery engine.
type MonitoringSession struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	SearchMode      string     `json:"search_mode"`
	Period          string     `json:"period"`
	DateFrom        time.Time  `json:"date_from"`
	DateTo          time.Time  `json:"date_to"`
	SitesCount      int        `json:"sites_count"`
	QueriesCount    int        `json:"queries_count"`
	ResultsCount    int        `json:"results_count"`
	SuccessCount    int        `json:"success_count"`
	ErrorCount      int        `json:"error_count"`
	NoDataCount     int        `json:"no_data_count"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// MonitoringSessionStore provides data access methods for monitoring sessions.
type MonitoringSessionStore struct {
	pool *pgxpool.Pool
}

// NewMonitoringSessionStore creates a new MonitoringSessionStore.
func NewMonitoringSessionStore(pool *pgxpool.Pool) *MonitoringSessionStore {
	return &MonitoringSessionStore{pool: pool}
}

// Create inserts a running session.
func (s *MonitoringSessionStore) Create(ctx context.Context, ms *MonitoringSession) error {
	if ms.ID == uuid.Nil {
		ms.ID = uuid.New()
	}
	if ms.Status == "" {
		ms.Status = SessionRunning
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO monitoring_sessions (id, name, search_mode, period, date_from,
		                                 date_to, sites_count, queries_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING started_at
	`,
		ms.ID, ms.Name, ms.SearchMode, ms.Period, ms.DateFrom, ms.DateTo,
		ms.SitesCount, ms.QueriesCount, ms.Status,
	).Scan(&ms.StartedAt)
	if err != nil {
		return fmt.Errorf("monitoring session create: %w", err)
	}
	return nil
}

// Finalize stores the final status, counters and duration of a session.
func (s *MonitoringSessionStore) Finalize(ctx context.Context, ms *MonitoringSession) error {
	now := time.Now()
	duration := now.Sub(ms.StartedAt).Seconds()
	ms.CompletedAt = &now
	ms.DurationSeconds = &duration

	tag, err := s.pool.Exec(ctx, `
		UPDATE monitoring_sessions
		SET status = $1, results_count = $2, success_count = $3, error_count = $4,
		    no_data_count = $5, completed_at = $6, duration_seconds = $7,
		    error_message = $8
		WHERE id = $9
	`,
		ms.Status, ms.ResultsCount, ms.SuccessCount, ms.ErrorCount, ms.NoDataCount,
		now, duration, nullable(ms.ErrorMessage), ms.ID,
	)
	if err != nil {
		return fmt.Errorf("monitoring session finalize: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("monitoring session %s: %w", ms.ID, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, name, search_mode, period, date_from, date_to,
		       sites_count, queries_count, results_count, success_count,
		       error_count, no_data_count, status, started_at, completed_at,
		       duration_seconds, error_message`

func scanMonitoringSession(row pgx.Row) (*MonitoringSession, error) {
	var ms MonitoringSession
	var errMsg *string
	err := row.Scan(
		&ms.ID, &ms.Name, &ms.SearchMode, &ms.Period, &ms.DateFrom, &ms.DateTo,
		&ms.SitesCount, &ms.QueriesCount, &ms.ResultsCount, &ms.SuccessCount,
		&ms.ErrorCount, &ms.NoDataCount, &ms.Status, &ms.StartedAt,
		&ms.CompletedAt, &ms.DurationSeconds, &errMsg,
	)
	if err != nil {
		return nil, err
	}
	ms.ErrorMessage = deref(errMsg)
	return &ms, nil
}

// GetByID returns one session.
func (s *MonitoringSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*MonitoringSession, error) {
	ms, err := scanMonitoringSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM monitoring_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("monitoring session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("monitoring session get: %w", err)
	}
	return ms, nil
}

// List returns the most recent sessions first.
func (s *MonitoringSessionStore) List(ctx context.Context, limit int) ([]MonitoringSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM monitoring_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("monitoring session list: %w", err)
	}
	defer rows.Close()

	var out []MonitoringSession
	for rows.Next() {
		ms, err := scanMonitoringSession(rows)
		if err != nil {
			return nil, fmt.Errorf("monitoring session scan: %w", err)
		}
		out = append(out, *ms)
	}
	return out, rows.Err()
}
