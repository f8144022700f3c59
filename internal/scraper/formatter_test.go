package scraper

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(s string) *time.Time {
	t := day(s)
	return &t
}

func sampleMatches() []MatchRecord {
	return []MatchRecord{
		{URL: "https://tv.example.ru/1", Title: "Old", Date: datePtr("2024-05-01"), MatchedKeywords: []string{"бюджет"}, Snippet: "s1"},
		{URL: "https://tv.example.ru/2", Title: "Undated", MatchedKeywords: []string{"бюджет дефицит"}},
		{URL: "https://tv.example.ru/3", Title: "New", Date: datePtr("2024-05-09"), MatchedKeywords: []string{"Бюджет", "ЖКХ"}},
		{URL: "https://tv.example.ru/4", Title: "Roads", Date: datePtr("2024-05-08"), MatchedKeywords: []string{"дороги"}},
	}
}

func TestFilterByKeyword_LooseAndStrict(t *testing.T) {
	matches := sampleMatches()

	loose := FilterByKeyword(matches, "бюджет")
	assert.Len(t, loose, 3, "substring of the joined keyword list")

	strict := FilterByKeywordStrict(matches, "бюджет")
	assert.Len(t, strict, 2)

	assert.Empty(t, FilterByKeyword(matches, "выборы"))
}

func TestSortByDate_UndatedLast(t *testing.T) {
	matches := sampleMatches()
	SortByDate(matches)

	var titles []string
	for _, m := range matches {
		titles = append(titles, m.Title)
	}
	assert.Equal(t, []string{"New", "Roads", "Old", "Undated"}, titles)
}

func TestFormat(t *testing.T) {
	f := Format(sampleMatches(), "бюджет", 2)
	assert.Equal(t, 3, f.TotalCount)
	require.Len(t, f.Display, 2)
	assert.Equal(t, "New", f.Display[0].Title)
	assert.Equal(t, "09.05.2024", f.Display[0].Date)
	assert.Equal(t, "Old", f.Display[1].Title)
	assert.Equal(t, "found 3 articles mentioning 'бюджет' (showing first 2)", f.Summary)

	f = Format(sampleMatches(), "бюджет", 0)
	assert.Len(t, f.Display, 3)
	assert.Equal(t, unknownDate, f.Display[2].Date)
	assert.Equal(t, "found 3 articles mentioning 'бюджет'", f.Summary)
}

func TestFormat_Empty(t *testing.T) {
	f := Format(nil, "бюджет", 10)
	assert.Equal(t, 0, f.TotalCount)
	assert.NotNil(t, f.Display)
	assert.Equal(t, "search for 'бюджет' returned no results", f.Summary)

	f = Format(sampleMatches(), "выборы", 10)
	assert.Equal(t, 0, f.TotalCount)
	assert.Empty(t, f.Display)
	assert.Equal(t, "no articles mentioning 'выборы' found", f.Summary)
}

func TestForExternalAnalysis(t *testing.T) {
	var matches []MatchRecord
	for i := range 8 {
		matches = append(matches, MatchRecord{
			URL:             fmt.Sprintf("https://tv.example.ru/%d", i),
			Title:           fmt.Sprintf("Article %d", i),
			Date:            datePtr(fmt.Sprintf("2024-05-%02d", i+1)),
			MatchedKeywords: []string{"бюджет"},
			Snippet:         strings.Repeat("я", 400),
		})
	}

	digest := ForExternalAnalysis(matches, "Region TV", "бюджет")
	assert.True(t, strings.HasPrefix(digest, "Site: Region TV\nKeyword: бюджет\nArticles found: 8"))
	assert.Contains(t, digest, "1. 08.05.2024 - Article 7")
	assert.NotContains(t, digest, "Article 2")
	assert.Contains(t, digest, "... and 3 more articles")
	assert.NotContains(t, digest, strings.Repeat("я", analysisSnippetLen+1))
	assert.LessOrEqual(t, len([]rune(digest)), MaxAnalysisDigest)
}
