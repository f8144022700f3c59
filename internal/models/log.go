package models

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Log levels stored in monitoring_logs.
const (
	LogInfo    = "INFO"
	LogWarning = "WARNING"
	LogError   = "ERROR"
)

// LogEntry is one operator-visible event.
type LogEntry struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Module    string    `json:"module"`
	CreatedAt time.Time `json:"created_at"`
}

// LogStore provides data access methods for the operator log.
type LogStore struct {
	pool *pgxpool.Pool
}

// NewLogStore creates a new LogStore.
func NewLogStore(pool *pgxpool.Pool) *LogStore {
	return &LogStore{pool: pool}
}

// Add appends an entry.
func (s *LogStore) Add(ctx context.Context, level, module, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monitoring_logs (level, message, module)
		VALUES ($1, $2, $3)
	`, level, message, module)
	if err != nil {
		return fmt.Errorf("log add: %w", err)
	}
	return nil
}

// Recent returns the newest entries, optionally only those of one level.
func (s *LogStore) Recent(ctx context.Context, level string, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, level, message, module, created_at
		FROM monitoring_logs
		WHERE $1 = '' OR level = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, level, limit)
	if err != nil {
		return nil, fmt.Errorf("log recent: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.Module, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("log scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes entries older than days days.
func (s *LogStore) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM monitoring_logs
		WHERE created_at < now() - make_interval(days => $1)
	`, days)
	if err != nil {
		return 0, fmt.Errorf("log cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
