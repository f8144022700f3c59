package scraper

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultMaxDisplay is the number of articles kept in a display list.
	DefaultMaxDisplay = 10

	analysisArticles   = 5
	analysisSnippetLen = 150

	// MaxAnalysisDigest caps the digest handed to the analysis API.
	MaxAnalysisDigest = 3000

	unknownDate = "date unknown"
)

// DisplayArticle is a match prepared for persistence and display.
type DisplayArticle struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Date            string   `json:"date"`
	Snippet         string   `json:"snippet"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// Formatted is the result of formatting one keyword's matches.
type Formatted struct {
	Summary    string           `json:"summary"`
	Display    []DisplayArticle `json:"display"`
	TotalCount int              `json:"total_count"`
}

// FilterByKeyword keeps the matches whose joined keyword list contains
// keyword, ignoring case. The test runs against the joined list, so
// "budget" also selects a match recorded for "budget deficit". Callers rely
// on this looseness.
func FilterByKeyword(matches []MatchRecord, keyword string) []MatchRecord {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	var out []MatchRecord
	for _, m := range matches {
		joined := strings.ToLower(strings.Join(m.MatchedKeywords, " "))
		if strings.Contains(joined, needle) {
			out = append(out, m)
		}
	}
	return out
}

// FilterByKeywordStrict keeps the matches that recorded keyword itself,
// ignoring case.
func FilterByKeywordStrict(matches []MatchRecord, keyword string) []MatchRecord {
	needle := strings.TrimSpace(keyword)
	var out []MatchRecord
	for _, m := range matches {
		for _, kw := range m.MatchedKeywords {
			if strings.EqualFold(kw, needle) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// SortByDate orders matches newest first; undated matches go last and keep
// their relative order.
func SortByDate(matches []MatchRecord) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Date, matches[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// Format filters matches for keyword, sorts them and renders the summary.
func Format(matches []MatchRecord, keyword string, maxDisplay int) Formatted {
	if maxDisplay <= 0 {
		maxDisplay = DefaultMaxDisplay
	}
	if len(matches) == 0 {
		return Formatted{
			Summary: fmt.Sprintf("search for '%s' returned no results", keyword),
			Display: []DisplayArticle{},
		}
	}

	relevant := FilterByKeyword(matches, keyword)
	if len(relevant) == 0 {
		return Formatted{
			Summary: fmt.Sprintf("no articles mentioning '%s' found", keyword),
			Display: []DisplayArticle{},
		}
	}

	SortByDate(relevant)

	n := len(relevant)
	if n > maxDisplay {
		n = maxDisplay
	}
	display := make([]DisplayArticle, 0, n)
	for _, m := range relevant[:n] {
		display = append(display, DisplayArticle{
			Title:           m.Title,
			URL:             m.URL,
			Date:            displayDate(m),
			Snippet:         m.Snippet,
			MatchedKeywords: m.MatchedKeywords,
		})
	}

	summary := fmt.Sprintf("found %d articles mentioning '%s'", len(relevant), keyword)
	if len(relevant) > maxDisplay {
		summary += fmt.Sprintf(" (showing first %d)", maxDisplay)
	}

	return Formatted{Summary: summary, Display: display, TotalCount: len(relevant)}
}

func displayDate(m MatchRecord) string {
	if m.Date == nil {
		return unknownDate
	}
	return m.Date.Format("02.01.2006")
}

// ForExternalAnalysis renders a bounded plain-text digest of the matches for
// keyword, suitable as input to the analysis API.
func ForExternalAnalysis(matches []MatchRecord, siteName, keyword string) string {
	relevant := FilterByKeyword(matches, keyword)
	SortByDate(relevant)

	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\nKeyword: %s\nArticles found: %d\n\n", siteName, keyword, len(relevant))

	for i, m := range relevant {
		if i >= analysisArticles {
			fmt.Fprintf(&b, "... and %d more articles\n", len(relevant)-analysisArticles)
			break
		}
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, displayDate(m), m.Title)
		if m.Snippet != "" {
			fmt.Fprintf(&b, "   fragment: %s\n", TruncateRunes(m.Snippet, analysisSnippetLen))
		}
		b.WriteString("\n")
	}

	return TruncateRunes(strings.TrimSpace(b.String()), MaxAnalysisDigest)
}
