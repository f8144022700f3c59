// Package models holds the persisted entities and their PostgreSQL stores.
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

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Site is a monitored regional broadcaster website.
type Site struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Region     string    `json:"region"`
	City       string    `json:"city"`
	District   string    `json:"district"`
	Website    string    `json:"website,omitempty"`
	SitemapURL string    `json:"sitemap_url,omitempty"`
	AllSites   string    `json:"all_sites,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSite builds an active Site. Name is required.
func NewSite(name, district string) (*Site, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("site: name is required")
	}
	return &Site{
		ID:       uuid.New(),
		Name:     name,
		District: strings.TrimSpace(district),
		Active:   true,
	}, nil
}

// Validate checks the fields required before a write.
func (s *Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("site: name is required")
	}
	return nil
}

// SiteFilter narrows a site listing.
type SiteFilter struct {
	ActiveOnly bool
	District   string
	IDs        []uuid.UUID
}

// DistrictCount is the number of sites in one district.
type DistrictCount struct {
	District string `json:"district"`
	Total    int    `json:"total"`
	Active   int    `json:"active"`
}

// SiteStore provides data access methods for sites.
type SiteStore struct {
	pool *pgxpool.Pool
}

// NewSiteStore creates a new SiteStore.
func NewSiteStore(pool *pgxpool.Pool) *SiteStore {
	return &SiteStore{pool: pool}
}

const siteColumns = `id, name, region, city, district, website, sitemap_url,
		       all_sites, active, created_at, updated_at`

// ListAll returns all sites regardless of active status.
func (s *SiteStore) ListAll(ctx context.Context) ([]Site, error) {
	return s.List(ctx, SiteFilter{})
}

// ListActive returns all sites where active = true.
func (s *SiteStore) ListActive(ctx context.Context) ([]Site, error) {
	return s.List(ctx, SiteFilter{ActiveOnly: true})
}

// List returns the sites matching f, ordered by district and name.
func (s *SiteStore) List(ctx context.Context, f SiteFilter) ([]Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE true`
	var args []any
	if f.ActiveOnly {
		query += " AND active = true"
	}
	if f.District != "" {
		args = append(args, f.District)
		query += fmt.Sprintf(" AND district = $%d", len(args))
	}
	if len(f.IDs) > 0 {
		args = append(args, uuidStrings(f.IDs))
		query += fmt.Sprintf(" AND id = ANY($%d::uuid[])", len(args))
	}
	query += " ORDER BY district ASC, name ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("site list: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

// GetByID returns one site.
func (s *SiteStore) GetByID(ctx context.Context, id uuid.UUID) (*Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return site, err
}

func scanSite(row pgx.Row) (*Site, error) {
	var site Site
	var website, sitemapURL, allSites *string
	if err := row.Scan(
		&site.ID, &site.Name, &site.Region, &site.City, &site.District,
		&website, &sitemapURL, &allSites, &site.Active,
		&site.CreatedAt, &site.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("site scan: %w", err)
	}
	site.Website = deref(website)
	site.SitemapURL = deref(sitemapURL)
	site.AllSites = deref(allSites)
	return &site, nil
}

// Create inserts a new site.
func (s *SiteStore) Create(ctx context.Context, site *Site) error {
	if err := site.Validate(); err != nil {
		return err
	}
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO sites (id, name, region, city, district, website,
		                   sitemap_url, all_sites, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`,
		site.ID, site.Name, site.Region, site.City, site.District,
		nullable(site.Website), nullable(site.SitemapURL), nullable(site.AllSites), site.Active,
	).Scan(&site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		return fmt.Errorf("site create: %w", err)
	}
	return nil
}

// Update modifies an existing site.
func (s *SiteStore) Update(ctx context.Context, site *Site) error {
	if err := site.Validate(); err != nil {
		return err
	}

	err := s.pool.QueryRow(ctx, `
		UPDATE sites
		SET name = $1, region = $2, city = $3, district = $4, website = $5,
		    sitemap_url = $6, all_sites = $7, active = $8, updated_at = now()
		WHERE id = $9
		RETURNING created_at, updated_at
	`,
		site.Name, site.Region, site.City, site.District, nullable(site.Website),
		nullable(site.SitemapURL), nullable(site.AllSites), site.Active, site.ID,
	).Scan(&site.CreatedAt, &site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("site %s: %w", site.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("site update: %w", err)
	}
	return nil
}

// Upsert inserts a site or updates the one with the same name and district.
// It reports whether a new row was created.
func (s *SiteStore) Upsert(ctx context.Context, site *Site) (bool, error) {
	if err := site.Validate(); err != nil {
		return false, err
	}
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sites (id, name, region, city, district, website,
		                   sitemap_url, all_sites, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name, district) DO UPDATE
		SET region = EXCLUDED.region, city = EXCLUDED.city,
		    website = EXCLUDED.website, sitemap_url = EXCLUDED.sitemap_url,
		    all_sites = EXCLUDED.all_sites, active = EXCLUDED.active,
		    updated_at = now()
		RETURNING id, created_at, updated_at, (xmax = 0)
	`,
		site.ID, site.Name, site.Region, site.City, site.District,
		nullable(site.Website), nullable(site.SitemapURL), nullable(site.AllSites), site.Active,
	).Scan(&site.ID, &site.CreatedAt, &site.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("site upsert: %w", err)
	}
	return inserted, nil
}

// ToggleActive sets only the active flag on a site without modifying other fields.
func (s *SiteStore) ToggleActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sites SET active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("site toggle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a site by ID. Its results are removed with it.
func (s *SiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("site delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return nil
}

// Districts returns site counts per district.
func (s *SiteStore) Districts(ctx context.Context) ([]DistrictCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT district, count(*), count(*) FILTER (WHERE active)
		FROM sites
		GROUP BY district
		ORDER BY count(*) DESC, district ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("site districts: %w", err)
	}
	defer rows.Close()

	var out []DistrictCount
	for rows.Next() {
		var dc DistrictCount
		if err := rows.Scan(&dc.District, &dc.Total, &dc.Active); err != nil {
			return nil, fmt.Errorf("site districts scan: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
