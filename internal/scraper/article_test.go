package scraper

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><head><title>Site title</title></head><body>
<div class="wrapper"><nav><p>Menu item</p></nav>
<div class="news-content">
  <h1>  Бюджет   области  </h1>
  <p>Депутаты обсудили   бюджет на 2025 год.</p>
  <p></p>
  <p>Заседание прошло в среду.</p>
</div></div>
<footer><p>Footer</p></footer>
</body></html>`

func parseHTML(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Selection
}

func TestExtractArticle_ContentContainer(t *testing.T) {
	title, body := ExtractArticle(parseHTML(t, articleHTML))
	assert.Equal(t, "Бюджет области", title)
	assert.Equal(t, "Депутаты обсудили бюджет на 2025 год. Заседание прошло в среду.", body)
}

func TestExtractArticle_Fallbacks(t *testing.T) {
	title, body := ExtractArticle(parseHTML(t, `<html><head><title>Only title</title></head><body><p>One</p><p>Two</p></body></html>`))
	assert.Equal(t, "Only title", title)
	assert.Equal(t, "One Two", body)

	var paras strings.Builder
	for i := range 25 {
		fmt.Fprintf(&paras, "<p>p%d</p>", i)
	}
	title, body = ExtractArticle(parseHTML(t, "<html><body>"+paras.String()+"</body></html>"))
	assert.Equal(t, untitled, title)
	assert.True(t, strings.HasSuffix(body, "p19"), body)
}

func TestMatch(t *testing.T) {
	art := &Article{
		URL:   "https://tv.example.ru/a",
		Title: "Бюджет области",
		Body:  "Депутаты обсудили дороги и ЖКХ.",
	}

	rec := Match(art, []string{"бюджет", " ", "жкх", "выборы"})
	require.NotNil(t, rec)
	assert.Equal(t, []string{"бюджет", "жкх"}, rec.MatchedKeywords)
	assert.Equal(t, "https://tv.example.ru/a", rec.URL)
	assert.Equal(t, "Бюджет области", rec.Title)

	assert.Nil(t, Match(art, []string{"выборы"}))

	art.FinalURL = "https://tv.example.ru/a/"
	assert.Equal(t, "https://tv.example.ru/a/", Match(art, []string{"дороги"}).URL)
}

func TestNewMatchRecord_RequiresKeywords(t *testing.T) {
	_, err := NewMatchRecord("https://tv.example.ru/a", "t", nil, nil, "")
	assert.Error(t, err)
	_, err = NewMatchRecord("", "t", nil, []string{"x"}, "")
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "...bbb KEYWORD ccc...", Snippet("aaa bbb KEYWORD ccc ddd", "keyword", 4))
	assert.Equal(t, "...KEY...", Snippet("xaaa bbbb KEY cccc dddd", "key", 3))
	assert.Equal(t, "aaa bbb KEYWORD ccc ddd", Snippet("aaa bbb KEYWORD ccc ddd", "keyword", 100))
	assert.Equal(t, "aaa...", Snippet("aaa bbb", "zzz", 4), "opening of the body when keyword is absent")
	assert.Equal(t, "", Snippet("", "x", 10))
	assert.Equal(t, "...бюджет...", Snippet("Обсуждали долго бюджет области вчера", "БЮДЖЕТ", 3))
}

func TestMatcher_FetchAndMatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	})
	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"title":"бюджет"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewMatcher(NewFetcher(FetchOptions{}))

	rec, err := m.FetchAndMatch(t.Context(), srv.URL+"/article", []string{"бюджет", "выборы"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"бюджет"}, rec.MatchedKeywords)
	assert.Equal(t, "Бюджет области", rec.Title)
	assert.Contains(t, rec.Snippet, "бюджет на 2025 год")

	rec, err = m.FetchAndMatch(t.Context(), srv.URL+"/article", []string{"выборы"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = m.FetchAndMatch(t.Context(), srv.URL+"/missing", []string{"бюджет"})
	require.NoError(t, err, "fetch failures are not errors")
	assert.Nil(t, rec)

	rec, err = m.FetchAndMatch(t.Context(), srv.URL+"/feed.json", []string{"бюджет"})
	require.NoError(t, err)
	assert.Nil(t, rec, "non-HTML responses are skipped")

	_, err = m.FetchAndMatch(t.Context(), srv.URL+"/article", nil)
	assert.Error(t, err)
}

func TestFetchAndMatch_TimeoutIsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	m := NewMatcher(NewFetcher(FetchOptions{Timeout: 100 * time.Millisecond}))
	start := time.Now()
	rec, err := m.FetchAndMatch(t.Context(), srv.URL+"/slow", []string{"бюджет"})
	require.NoError(t, err, "a timeout is not an error")
	assert.Nil(t, rec)
	assert.Less(t, time.Since(start), time.Second)
}
