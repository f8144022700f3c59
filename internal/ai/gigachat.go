package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/regionwatch/internal/config"
)

const (
	// tokenRenewMargin renews a token this long before it expires.
	tokenRenewMargin = 5 * time.Minute
	defaultTokenTTL  = 30 * time.Minute
)

// errTokenRejected is returned by a chat call answered with 401.
var errTokenRejected = errors.New("gigachat: token rejected")

// GigaChatClient talks to a GigaChat-compatible chat completion API that is
// protected by an OAuth client-credentials handshake.
type GigaChatClient struct {
	authURL     string
	baseURL     string
	authKey     string
	scope       string
	model       string
	temperature float64
	httpClient  *http.Client
	now         func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewGigaChatClient creates a client from cfg.
func NewGigaChatClient(cfg config.GigaChatConfig) *GigaChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = generateTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		// WARNING: the public GigaChat endpoints use certificates issued by
		// the Russian national CA, which is missing from most trust stores.
		// Verification is skipped only when GIGACHAT_INSECURE_TLS is set.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &GigaChatClient{
		authURL:     cfg.AuthURL,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		authKey:     cfg.AuthKey,
		scope:       cfg.Scope,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
		now:         time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// accessToken returns a cached token, fetching a new one when the cached one
// is missing or about to expire.
func (c *GigaChatClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{"scope": {c.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gigachat auth: create request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.authKey)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat auth: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: auth status %d: %s", ErrUnauthorized, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gigachat auth: status %d: %s", resp.StatusCode, string(respBody))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("gigachat auth: decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("gigachat auth: empty access token")
	}

	now := c.now()
	expiry := now.Add(defaultTokenTTL)
	switch {
	case tok.ExpiresAt > 0:
		expiry = time.UnixMilli(tok.ExpiresAt)
	case tok.ExpiresIn > 0:
		expiry = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	c.token = tok.AccessToken
	c.expiresAt = expiry.Add(-tokenRenewMargin)
	slog.Debug("gigachat: token refreshed", "renew_at", c.expiresAt)
	return c.token, nil
}

func (c *GigaChatClient) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Analyze implements Analyzer. A token rejected by the chat endpoint is
// renewed once before giving up with ErrUnauthorized.
func (c *GigaChatClient) Analyze(ctx context.Context, text, prompt string) (string, Usage, error) {
	start := c.now()
	usage := Usage{Model: c.model, Temperature: c.temperature}
	message := buildMessage(text, prompt)

	result, err := c.complete(ctx, message, &usage)
	if errors.Is(err, errTokenRejected) {
		c.dropToken()
		result, err = c.complete(ctx, message, &usage)
		if errors.Is(err, errTokenRejected) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	usage.Duration = c.now().Sub(start)
	if err != nil {
		return "", usage, err
	}
	return result, usage, nil
}

func (c *GigaChatClient) complete(ctx context.Context, message string, usage *Usage) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: message}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gigachat chat: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gigachat chat: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat chat: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errTokenRejected
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gigachat chat: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gigachat chat: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("gigachat chat: no choices in response")
	}

	if out.Model != "" {
		usage.Model = out.Model
	}
	usage.PromptTokens = out.Usage.PromptTokens
	usage.CompletionTokens = out.Usage.CompletionTokens
	usage.TotalTokens = out.Usage.TotalTokens

	result := strings.TrimSpace(out.Choices[0].Message.Content)
	if result == "" {
		return "", fmt.Errorf("gigachat chat: empty response")
	}
	return result, nil
}
