package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// ResolvedSitemap is the sitemap document a site publishes.
type ResolvedSitemap struct {
	URL  string
	Body []byte
}

// Resolver locates a usable sitemap for a site.
type Resolver struct {
	fetcher *Fetcher
	now     func() time.Time
}

// NewResolver creates a Resolver that fetches through f.
func NewResolver(f *Fetcher) *Resolver {
	return &Resolver{fetcher: f, now: time.Now}
}

// conventionalPaths lists the sitemap locations probed when the site has no
// known sitemap, in probing order.
func conventionalPaths(year int) []string {
	return []string{
		"/sitemap_index.xml",
		"/sitemap.xml",
		fmt.Sprintf("/sitemap%d.xml", year),
		fmt.Sprintf("/sitemap%d.xml", year-1),
		"/news-sitemap.xml",
		"/post-sitemap.xml",
		"/sitemap/sitemap.xml",
		"/yandex-turbo-sitemap.xml",
	}
}

// Resolve tries, in order, the known sitemap URL, the conventional paths and
// the Sitemap directives of robots.txt. The boolean is false when nothing
// usable was found, which is a normal outcome for many sites.
func (r *Resolver) Resolve(ctx context.Context, baseURL, knownSitemapURL string) (ResolvedSitemap, bool) {
	base := NormalizeBaseURL(baseURL)
	if base == "" {
		return ResolvedSitemap{}, false
	}

	if known := strings.TrimSpace(knownSitemapURL); known != "" {
		target := resolveReference(base, known)
		if page := r.fetch(ctx, target); page.OK() {
			return ResolvedSitemap{URL: target, Body: page.Body}, true
		}
	}

	for _, p := range conventionalPaths(r.now().Year()) {
		if stopped(ctx) {
			return ResolvedSitemap{}, false
		}
		target := base + p
		if page := r.fetch(ctx, target); page.OK() && looksLikeSitemap(page) {
			return ResolvedSitemap{URL: target, Body: page.Body}, true
		}
	}

	if stopped(ctx) {
		return ResolvedSitemap{}, false
	}
	for _, target := range r.robotsSitemaps(ctx, base) {
		if stopped(ctx) {
			return ResolvedSitemap{}, false
		}
		if page := r.fetch(ctx, target); page.OK() {
			return ResolvedSitemap{URL: target, Body: page.Body}, true
		}
	}

	slog.Debug("resolver: no sitemap", "base", base)
	return ResolvedSitemap{}, false
}

func (r *Resolver) fetch(ctx context.Context, target string) *Page {
	page, err := r.fetcher.Get(ctx, target)
	if err != nil {
		slog.Debug("resolver: fetch failed", "url", target, "err", err)
		return nil
	}
	return page
}

// robotsSitemaps returns the absolute sitemap URLs declared in robots.txt.
func (r *Resolver) robotsSitemaps(ctx context.Context, base string) []string {
	page := r.fetch(ctx, base+"/robots.txt")
	if !page.OK() {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		slog.Debug("resolver: parse robots.txt", "base", base, "err", err)
		return nil
	}

	out := make([]string, 0, len(data.Sitemaps))
	for _, s := range data.Sitemaps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, resolveReference(base, s))
		}
	}
	return out
}

// NormalizeBaseURL reduces a configured website to scheme://host. Addresses
// without a scheme are assumed to be https. Returns "" for unusable input.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

func resolveReference(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func isXMLContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "xml")
}

func looksLikeSitemap(p *Page) bool {
	return bytes.Contains(p.Body, []byte("<urlset")) ||
		bytes.Contains(p.Body, []byte("<sitemapindex")) ||
		isXMLContentType(p.ContentType)
}
