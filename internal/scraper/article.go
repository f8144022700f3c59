package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	// snippetRadius is the number of runes kept on each side of the keyword.
	snippetRadius = 150

	// fallbackParagraphs is how many document-wide <p> elements are read when
	// no content container is found.
	fallbackParagraphs = 20

	untitled = "Untitled"
)

var errNoKeywords = errors.New("matcher: at least one keyword is required")

// MatchRecord is one article in which at least one keyword was found.
type MatchRecord struct {
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	Date            *time.Time `json:"date,omitempty"`
	MatchedKeywords []string   `json:"matched_keywords"`
	Snippet         string     `json:"snippet"`
}

// NewMatchRecord validates and builds a MatchRecord.
func NewMatchRecord(url, title string, date *time.Time, matched []string, snippet string) (MatchRecord, error) {
	if len(matched) == 0 {
		return MatchRecord{}, fmt.Errorf("match record %s: no matched keywords", url)
	}
	if url == "" {
		return MatchRecord{}, errors.New("match record: empty url")
	}
	return MatchRecord{
		URL:             url,
		Title:           title,
		Date:            date,
		MatchedKeywords: matched,
		Snippet:         snippet,
	}, nil
}

// Article is the text extracted from one fetched page.
type Article struct {
	URL      string
	FinalURL string
	Title    string
	Body     string
}

// Matcher fetches articles and tests them for keywords.
type Matcher struct {
	fetcher *Fetcher
}

// NewMatcher creates a Matcher that fetches through f.
func NewMatcher(f *Fetcher) *Matcher {
	return &Matcher{fetcher: f}
}

// FetchAndMatch fetches pageURL and returns a record when at least one keyword
// occurs in its title or body. A page that cannot be fetched, is not HTML, or
// does not match yields nil without an error.
func (m *Matcher) FetchAndMatch(ctx context.Context, pageURL string, keywords []string) (*MatchRecord, error) {
	if len(keywords) == 0 {
		return nil, errNoKeywords
	}

	art, err := m.Fetch(ctx, pageURL)
	if err != nil {
		slog.Debug("matcher: fetch failed", "url", pageURL, "err", err)
		return nil, nil
	}
	if art == nil {
		return nil, nil
	}
	return Match(art, keywords), nil
}

// Fetch downloads pageURL and extracts its title and body. It returns nil
// when the response held no HTML document.
func (m *Matcher) Fetch(ctx context.Context, pageURL string) (*Article, error) {
	c := m.fetcher.Collector()

	var (
		result *Article
		mu     sync.Mutex
		scrErr error
	)

	c.OnHTML("html", func(e *colly.HTMLElement) {
		title, body := ExtractArticle(e.DOM)
		mu.Lock()
		defer mu.Unlock()
		if result != nil {
			return
		}
		result = &Article{
			URL:      pageURL,
			FinalURL: e.Request.URL.String(),
			Title:    title,
			Body:     body,
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		mu.Lock()
		scrErr = fmt.Errorf("matcher: fetch %s: status %d: %w", pageURL, status, err)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(pageURL); err != nil {
			mu.Lock()
			if scrErr == nil {
				scrErr = fmt.Errorf("matcher: visit %s: %w", pageURL, err)
			}
			mu.Unlock()
		}
		c.Wait()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	if scrErr != nil {
		return nil, scrErr
	}
	return result, nil
}

// reContentHint matches class or id values of elements likely to hold the
// article text.
var reContentHint = regexp.MustCompile(`(?i)content|article|post|text|body`)

// ExtractArticle returns the title and main text of a parsed page. The title
// is the first <h1>, then <title>. The body is the paragraph text of the first
// content container, or of the first paragraphs of the page.
func ExtractArticle(doc *goquery.Selection) (title, body string) {
	title = CollapseWhitespace(doc.Find("h1").First().Text())
	if title == "" {
		title = CollapseWhitespace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = untitled
	}

	doc.Find("article, main, div, section").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !s.Is("article, main") {
			class, _ := s.Attr("class")
			id, _ := s.Attr("id")
			if !reContentHint.MatchString(class + " " + id) {
				return true
			}
		}
		if text := paragraphText(s.Find("p"), 0); text != "" {
			body = text
			return false
		}
		return true
	})

	if body == "" {
		body = paragraphText(doc.Find("p"), fallbackParagraphs)
	}
	return title, body
}

// paragraphText joins the non-empty paragraph texts of sel. limit <= 0 means
// no limit.
func paragraphText(sel *goquery.Selection, limit int) string {
	var parts []string
	sel.EachWithBreak(func(i int, p *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		if t := CollapseWhitespace(p.Text()); t != "" {
			parts = append(parts, t)
		}
		return true
	})
	return strings.Join(parts, " ")
}

// Match tests art for every keyword, case-insensitively, over title and body.
// It returns nil when nothing matched.
func Match(art *Article, keywords []string) *MatchRecord {
	haystack := strings.ToLower(art.Title + " " + art.Body)

	var matched []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	url := art.FinalURL
	if url == "" {
		url = art.URL
	}
	rec, err := NewMatchRecord(url, art.Title, nil, matched, Snippet(art.Body, matched[0], snippetRadius))
	if err != nil {
		return nil
	}
	return &rec
}

// Snippet returns the text around the first occurrence of keyword in body,
// radius runes on each side, cut back to whole words. An ellipsis marks each
// side where text was dropped. When keyword does not occur in body the
// opening of body is used.
func Snippet(body, keyword string, radius int) string {
	text := []rune(body)
	if len(text) == 0 {
		return ""
	}

	pos := indexFold(text, []rune(keyword))
	kwLen := len([]rune(keyword))
	if pos < 0 {
		pos, kwLen = 0, 0
	}

	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + kwLen + radius
	if end > len(text) {
		end = len(text)
	}

	if start > 0 && !unicode.IsSpace(text[start-1]) {
		for i := start; i < pos; i++ {
			if unicode.IsSpace(text[i]) {
				start = i + 1
				break
			}
		}
	}
	if end < len(text) && !unicode.IsSpace(text[end]) {
		for i := end; i > pos+kwLen; i-- {
			if unicode.IsSpace(text[i-1]) {
				end = i - 1
				break
			}
		}
	}

	snippet := strings.TrimSpace(string(text[start:end]))
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

// indexFold returns the rune index of the first case-insensitive occurrence of
// needle in hay, or -1.
func indexFold(hay, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		found := true
		for j := range needle {
			if unicode.ToLower(hay[i+j]) != unicode.ToLower(needle[j]) {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}
	return -1
}
