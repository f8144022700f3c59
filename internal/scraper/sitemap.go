package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultSitemapDepth bounds how far index documents are followed.
	DefaultSitemapDepth = 2

	// DefaultSitemapCap bounds the number of leaf entries collected per site.
	DefaultSitemapCap = 100
)

// Document is a decoded sitemap: either an Index or a URLSet.
type Document interface {
	isDocument()
}

// Index lists other sitemap documents.
type Index struct {
	Children []string
}

// URLSet lists pages.
type URLSet struct {
	Entries []LeafEntry
}

func (Index) isDocument()  {}
func (URLSet) isDocument() {}

// LeafEntry is one page listed in a sitemap. Date is nil when neither the
// lastmod value nor the URL carried a usable date.
type LeafEntry struct {
	URL  string     `json:"url"`
	Date *time.Time `json:"date,omitempty"`
}

// ErrNotSitemap is returned for XML whose root is neither urlset nor
// sitemapindex.
var ErrNotSitemap = errors.New("sitemap: unknown root element")

// Element names are matched by local name only, so both the http:// and
// https:// sitemaps.org namespaces decode the same way and extension
// namespaces (news, image) are ignored.
type xmlIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type xmlURLSet struct {
	URLs []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
	News    struct {
		PublicationDate string `xml:"publication_date"`
	} `xml:"news"`
}

var utf8BOM = []byte("\xef\xbb\xbf")

// DecodeDocument parses one sitemap document.
func DecodeDocument(body []byte) (Document, error) {
	body = bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))

	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("sitemap: decode: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch strings.ToLower(start.Name.Local) {
		case "sitemapindex":
			var idx xmlIndex
			if err := dec.DecodeElement(&idx, &start); err != nil {
				return nil, fmt.Errorf("sitemap: decode index: %w", err)
			}
			children := make([]string, 0, len(idx.Sitemaps))
			for _, s := range idx.Sitemaps {
				if loc := strings.TrimSpace(s.Loc); loc != "" {
					children = append(children, loc)
				}
			}
			return Index{Children: children}, nil

		case "urlset":
			var set xmlURLSet
			if err := dec.DecodeElement(&set, &start); err != nil {
				return nil, fmt.Errorf("sitemap: decode urlset: %w", err)
			}
			entries := make([]LeafEntry, 0, len(set.URLs))
			for _, u := range set.URLs {
				loc := strings.TrimSpace(u.Loc)
				if loc == "" {
					continue
				}
				entries = append(entries, LeafEntry{URL: loc, Date: entryDate(u)})
			}
			return URLSet{Entries: entries}, nil

		default:
			return nil, fmt.Errorf("%w: %s", ErrNotSitemap, start.Name.Local)
		}
	}
}

func entryDate(u xmlURL) *time.Time {
	if t, ok := ParseLastmod(u.LastMod); ok {
		return &t
	}
	if t, ok := ParseLastmod(u.News.PublicationDate); ok {
		return &t
	}
	if t, ok := DateFromURL(u.Loc); ok {
		return &t
	}
	return nil
}

// Parser walks a sitemap tree.
type Parser struct {
	fetcher *Fetcher

	// MaxDepth is the deepest level whose documents are fetched; the root is
	// level 0.
	MaxDepth int

	// MaxEntries caps the number of entries returned.
	MaxEntries int
}

// NewParser creates a Parser with the default depth and cap.
func NewParser(f *Fetcher) *Parser {
	return &Parser{fetcher: f, MaxDepth: DefaultSitemapDepth, MaxEntries: DefaultSitemapCap}
}

type sitemapTask struct {
	url   string
	body  []byte
	depth int
}

// Parse returns the leaf entries reachable from root, in document order.
// Children of an index are visited breadth-first. When window is non-nil,
// entries with a known date outside it are dropped; undated entries are
// always kept. A document that fails to fetch or decode contributes nothing.
func (p *Parser) Parse(ctx context.Context, root ResolvedSitemap, window *DateRange) []LeafEntry {
	maxEntries := p.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultSitemapCap
	}

	queue := []sitemapTask{{url: root.URL, body: root.Body}}
	seen := map[string]bool{CanonicalizeURL(root.URL): true}
	seenEntries := make(map[string]bool)
	var out []LeafEntry

	for len(queue) > 0 && len(out) < maxEntries {
		if stopped(ctx) {
			break
		}
		task := queue[0]
		queue = queue[1:]

		body := task.body
		if body == nil {
			page, err := p.fetcher.Get(ctx, task.url)
			if err != nil {
				slog.Warn("sitemap: fetch child", "url", task.url, "err", err)
				continue
			}
			if !page.OK() {
				slog.Debug("sitemap: child not available", "url", task.url, "status", page.StatusCode)
				continue
			}
			body = page.Body
		}

		doc, err := DecodeDocument(body)
		if err != nil {
			slog.Warn("sitemap: malformed document", "url", task.url, "err", err)
			continue
		}

		switch d := doc.(type) {
		case Index:
			if task.depth+1 > p.MaxDepth {
				slog.Debug("sitemap: depth bound reached", "url", task.url, "depth", task.depth)
				continue
			}
			for _, child := range d.Children {
				child = resolveReference(task.url, child)
				key := CanonicalizeURL(child)
				if seen[key] {
					continue
				}
				seen[key] = true
				if window != nil && isStaleYearly(child, window.From.Year()) {
					continue
				}
				queue = append(queue, sitemapTask{url: child, depth: task.depth + 1})
			}

		case URLSet:
			for _, e := range d.Entries {
				if window != nil && e.Date != nil && !window.Contains(*e.Date) {
					continue
				}
				key := CanonicalizeURL(e.URL)
				if seenEntries[key] {
					continue
				}
				seenEntries[key] = true
				out = append(out, e)
				if len(out) >= maxEntries {
					break
				}
			}
		}
	}

	return out
}

var reYearlySitemap = regexp.MustCompile(`sitemap[-_]?((?:19|20)\d{2})\.xml`)

// isStaleYearly reports whether a child sitemap is named after a year that
// ends before the window starts.
func isStaleYearly(childURL string, fromYear int) bool {
	m := reYearlySitemap.FindStringSubmatch(strings.ToLower(childURL))
	if m == nil {
		return false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	return year < fromYear
}
