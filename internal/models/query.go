package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Query is a keyword or phrase the monitoring run searches for.
type Query struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewQuery builds an active Query. Text is required.
func NewQuery(text, category string) (*Query, error) {
	q := &Query{ID: uuid.New(), Text: strings.TrimSpace(text), Category: strings.TrimSpace(category), Active: true}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the fields required before a write.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("query: text is required")
	}
	return nil
}

// QueryStore provides data access methods for search queries.
type QueryStore struct {
	pool *pgxpool.Pool
}

// NewQueryStore creates a new QueryStore.
func NewQueryStore(pool *pgxpool.Pool) *QueryStore {
	return &QueryStore{pool: pool}
}

// List returns queries ordered by priority (highest first). ids, when not
// empty, restricts the result.
func (s *QueryStore) List(ctx context.Context, activeOnly bool, ids []uuid.UUID) ([]Query, error) {
	query := `
		SELECT id, query_text, category, description, priority, active, created_at
		FROM search_queries
		WHERE true`
	var args []any
	if activeOnly {
		query += " AND active = true"
	}
	if len(ids) > 0 {
		args = append(args, uuidStrings(ids))
		query += " AND id = ANY($1::uuid[])"
	}
	query += " ORDER BY priority DESC, query_text ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query list: %w", err)
	}
	defer rows.Close()

	var out []Query
	for rows.Next() {
		var q Query
		if err := rows.Scan(&q.ID, &q.Text, &q.Category, &q.Description, &q.Priority, &q.Active, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Create inserts a new query. Returns false without error when a query with
// the same text already exists.
func (s *QueryStore) Create(ctx context.Context, q *Query) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO search_queries (id, query_text, category, description, priority, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (query_text) DO NOTHING
		RETURNING created_at
	`, q.ID, q.Text, q.Category, q.Description, q.Priority, q.Active).Scan(&q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query create: %w", err)
	}
	return true, nil
}

// Update modifies an existing query.
func (s *QueryStore) Update(ctx context.Context, q *Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE search_queries
		SET query_text = $1, category = $2, description = $3, priority = $4, active = $5
		WHERE id = $6
	`, q.Text, q.Category, q.Description, q.Priority, q.Active, q.ID)
	if err != nil {
		return fmt.Errorf("query update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("query %s: %w", q.ID, ErrNotFound)
	}
	return nil
}

// ToggleActive sets only the active flag.
func (s *QueryStore) ToggleActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE search_queries SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("query toggle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("query %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a query. Results keep their rows with the query reference
// cleared.
func (s *QueryStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM search_queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("query delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("query %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListByIDs returns the given queries whether or not they are active.
func (s *QueryStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]Query, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.List(ctx, false, ids)
}
