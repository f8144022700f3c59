package models

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Result statuses.
const (
	ResultSuccess = "success"
	ResultNoData  = "no_data"
	ResultError   = "error"
)

// Search modes recorded on results.
const (
	SearchModeSitemap     = "sitemap"
	SearchModeSitemapNoAI = "sitemap_no_ai"
)

// MaxResultContent is the number of characters of Content that are stored.
const MaxResultContent = 5000

// ArticleRef is one article kept with a result for display.
type ArticleRef struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Date            string   `json:"date"`
	Snippet         string   `json:"snippet,omitempty"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// MonitoringResult is the outcome for one (site, query) pair in a session.
// Error short-circuits carry no QueryID.
type MonitoringResult struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      uuid.UUID      `json:"session_id"`
	SiteID         uuid.UUID      `json:"site_id"`
	QueryID        *uuid.UUID     `json:"query_id,omitempty"`
	URL            string         `json:"url,omitempty"`
	PageTitle      string         `json:"page_title,omitempty"`
	Content        string         `json:"content,omitempty"`
	Analysis       string         `json:"analysis,omitempty"`
	RelevanceScore float64        `json:"relevance_score"`
	Status         string         `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SearchMode     string         `json:"search_mode"`
	Metrics        map[string]any `json:"metrics,omitempty"`
	Articles       []ArticleRef   `json:"articles,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Joined on read.
	SiteName  string `json:"site_name,omitempty"`
	District  string `json:"district,omitempty"`
	Region    string `json:"region,omitempty"`
	QueryText string `json:"query_text,omitempty"`
}

// ResultFilter narrows a result listing. Zero fields are ignored.
type ResultFilter struct {
	SessionID *uuid.UUID
	SiteID    *uuid.UUID
	QueryID   *uuid.UUID
	Status    string
	District  string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// MonitoringResultStore provides data access methods for results.
type MonitoringResultStore struct {
	pool *pgxpool.Pool
}

// NewMonitoringResultStore creates a new MonitoringResultStore.
func NewMonitoringResultStore(pool *pgxpool.Pool) *MonitoringResultStore {
	return &MonitoringResultStore{pool: pool}
}

// Create inserts one result. Content is cut to MaxResultContent characters
// and the relevance score is clamped to [0, 1].
func (s *MonitoringResultStore) Create(ctx context.Context, r *MonitoringResult) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.SearchMode == "" {
		r.SearchMode = SearchModeSitemap
	}
	r.Content = truncateChars(r.Content, MaxResultContent)
	r.RelevanceScore = min(max(r.RelevanceScore, 0), 1)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO monitoring_results (id, session_id, site_id, query_id, url,
		                                page_title, content, analysis, relevance_score,
		                                status, error_message, search_mode, metrics, articles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`,
		r.ID, r.SessionID, r.SiteID, r.QueryID, nullable(r.URL),
		nullable(r.PageTitle), nullable(r.Content), nullable(r.Analysis), r.RelevanceScore,
		r.Status, nullable(r.ErrorMessage), r.SearchMode, r.Metrics, r.Articles,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("result create: %w", err)
	}
	return nil
}

// List returns results newest first, joined with site and query names.
func (s *MonitoringResultStore) List(ctx context.Context, f ResultFilter) ([]MonitoringResult, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.SessionID != nil {
		where = append(where, "r.session_id = "+arg(*f.SessionID))
	}
	if f.SiteID != nil {
		where = append(where, "r.site_id = "+arg(*f.SiteID))
	}
	if f.QueryID != nil {
		where = append(where, "r.query_id = "+arg(*f.QueryID))
	}
	if f.Status != "" {
		where = append(where, "r.status = "+arg(f.Status))
	}
	if f.District != "" {
		where = append(where, "s.district = "+arg(f.District))
	}
	if f.From != nil {
		where = append(where, "r.created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "r.created_at < "+arg(*f.To))
	}

	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 500
	}

	query := `
		SELECT r.id, r.session_id, r.site_id, r.query_id, r.url, r.page_title,
		       r.content, r.analysis, r.relevance_score, r.status, r.error_message,
		       r.search_mode, r.metrics, r.articles, r.created_at,
		       s.name, s.district, s.region, COALESCE(q.query_text, '')
		FROM monitoring_results r
		JOIN sites s ON s.id = r.site_id
		LEFT JOIN search_queries q ON q.id = r.query_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at DESC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("result list: %w", err)
	}
	defer rows.Close()

	var out []MonitoringResult
	for rows.Next() {
		var r MonitoringResult
		var url, title, content, analysis, errMsg *string
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.SiteID, &r.QueryID, &url, &title,
			&content, &analysis, &r.RelevanceScore, &r.Status, &errMsg,
			&r.SearchMode, &r.Metrics, &r.Articles, &r.CreatedAt,
			&r.SiteName, &r.District, &r.Region, &r.QueryText,
		); err != nil {
			return nil, fmt.Errorf("result scan: %w", err)
		}
		r.URL = deref(url)
		r.PageTitle = deref(title)
		r.Content = deref(content)
		r.Analysis = deref(analysis)
		r.ErrorMessage = deref(errMsg)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes results created more than days days ago and
// returns how many rows were removed.
func (s *MonitoringResultStore) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("result cleanup: days must be positive, got %d", days)
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM monitoring_results
		WHERE created_at < now() - make_interval(days => $1)
	`, days)
	if err != nil {
		return 0, fmt.Errorf("result cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func truncateChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
