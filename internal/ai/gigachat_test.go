package ai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/regionwatch/internal/config"
)

type gigaServer struct {
	tokens     atomic.Int32
	chats      atomic.Int32
	rejectChat atomic.Int32 // number of chat calls to answer with 401
	authStatus int
}

func (g *gigaServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("RqUID"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "GIGACHAT_API_PERS", r.PostForm.Get("scope"))

		if g.authStatus != 0 {
			w.WriteHeader(g.authStatus)
			return
		}
		n := g.tokens.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":1800}`, n)
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		g.chats.Add(1)
		if g.rejectChat.Load() > 0 {
			g.rejectChat.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-"))

		fmt.Fprintf(w, `{"model":"GigaChat:1.0","choices":[{"message":{"role":"assistant","content":"  summary for %s  "}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
			r.Header.Get("Authorization"))
	})
	return mux
}

func newGigaClient(t *testing.T, g *gigaServer) *GigaChatClient {
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)
	return NewGigaChatClient(config.GigaChatConfig{
		AuthURL:     srv.URL + "/oauth",
		BaseURL:     srv.URL + "/api/v1/",
		AuthKey:     "secret",
		Scope:       "GIGACHAT_API_PERS",
		Model:       "GigaChat",
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	})
}

func TestGigaChat_AnalyzeReusesToken(t *testing.T) {
	g := &gigaServer{}
	c := newGigaClient(t, g)

	out, usage, err := c.Analyze(t.Context(), "articles", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "summary for Bearer tok-1", out)
	assert.Equal(t, "GigaChat:1.0", usage.Model)
	assert.Equal(t, 0.7, usage.Temperature)
	assert.Equal(t, 15, usage.TotalTokens)

	_, _, err = c.Analyze(t.Context(), "articles", "prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(1), g.tokens.Load())
	assert.Equal(t, int32(2), g.chats.Load())
}

func TestGigaChat_RenewsExpiringToken(t *testing.T) {
	g := &gigaServer{}
	c := newGigaClient(t, g)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _, err := c.Analyze(t.Context(), "a", "p")
	require.NoError(t, err)

	now = now.Add(26 * time.Minute)
	out, _, err := c.Analyze(t.Context(), "a", "p")
	require.NoError(t, err)
	assert.Equal(t, "summary for Bearer tok-2", out)
}

func TestGigaChat_RetriesOnceAfterRejectedToken(t *testing.T) {
	g := &gigaServer{}
	g.rejectChat.Store(1)
	c := newGigaClient(t, g)

	out, _, err := c.Analyze(t.Context(), "a", "p")
	require.NoError(t, err)
	assert.Equal(t, "summary for Bearer tok-2", out)
	assert.Equal(t, int32(2), g.tokens.Load())
}

func TestGigaChat_UnauthorizedAfterRetry(t *testing.T) {
	g := &gigaServer{}
	g.rejectChat.Store(2)
	c := newGigaClient(t, g)

	_, _, err := c.Analyze(t.Context(), "a", "p")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), g.chats.Load())
}

func TestGigaChat_AuthRejected(t *testing.T) {
	g := &gigaServer{authStatus: http.StatusUnauthorized}
	c := newGigaClient(t, g)

	_, _, err := c.Analyze(t.Context(), "a", "p")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(0), g.chats.Load())
}

func TestGigaChat_ServerErrorIsNotUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth" {
			fmt.Fprint(w, `{"access_token":"t","expires_at":4102444800000}`)
			return
		}
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewGigaChatClient(config.GigaChatConfig{AuthURL: srv.URL + "/oauth", BaseURL: srv.URL, AuthKey: "k"})
	_, _, err := c.Analyze(t.Context(), "a", "p")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "status 503")
}

func TestNew(t *testing.T) {
	a, err := New(config.AIConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = New(config.AIConfig{Provider: "gigachat"})
	assert.Error(t, err, "auth key required")

	a, err = New(config.AIConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: "http://localhost:11434", Model: "llama3"}})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, a)

	_, err = New(config.AIConfig{Provider: "openai"})
	assert.Error(t, err)
}

func TestBuildMessage_TruncatesText(t *testing.T) {
	msg := buildMessage(strings.Repeat("я", maxContentRunes+100), "prompt")
	assert.True(t, strings.HasPrefix(msg, "prompt\n\nText:\n"))
	assert.Equal(t, len([]rune("prompt\n\nText:\n"))+maxContentRunes, len([]rune(msg)))
}
