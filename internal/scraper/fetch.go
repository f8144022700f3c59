package scraper

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxRedirects = 3
	defaultPerHostConns = 5
	retryBackoff        = 500 * time.Millisecond

	// maxBodyBytes caps every response body read by the engine.
	maxBodyBytes = 10 * 1024 * 1024

	// DefaultUserAgent is sent with every outbound request unless overridden.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// FetchOptions configures the shared HTTP client.
type FetchOptions struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int
	Retries      int
	PerHostConns int
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Timeout <= 0 {
		o.Timeout = defaultFetchTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = defaultMaxRedirects
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.PerHostConns <= 0 {
		o.PerHostConns = defaultPerHostConns
	}
	return o
}

// Page is a fetched document.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports whether the page should be treated as present. Every component
// of the engine uses this single test.
func (p *Page) OK() bool {
	return p != nil && p.StatusCode == http.StatusOK
}

// Fetcher owns the connection pool shared by all concurrent site tasks.
type Fetcher struct {
	opts      FetchOptions
	transport *http.Transport
	client    *http.Client
}

// NewFetcher builds a Fetcher. The per-host connection cap applies across all
// goroutines using the same Fetcher.
func NewFetcher(opts FetchOptions) *Fetcher {
	opts = opts.withDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// WARNING: certificate verification is off. Many monitored sites run
		// self-signed or expired certificates and the engine only reads public
		// pages. This is a trust relaxation limited to this client; do not
		// reuse this transport for anything that sends credentials.
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: opts.PerHostConns,
		MaxConnsPerHost:     opts.PerHostConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: opts.Timeout,
		ForceAttemptHTTP2:   true,
	}

	f := &Fetcher{opts: opts, transport: transport}
	f.client = &http.Client{
		Transport:     transport,
		Timeout:       opts.Timeout,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// Options returns the effective options after defaults were applied.
func (f *Fetcher) Options() FetchOptions {
	return f.opts
}

func (f *Fetcher) checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) > f.opts.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", f.opts.MaxRedirects)
	}
	return nil
}

// Get fetches rawURL. An error means the transport failed after all retries;
// any HTTP response, including 404, is returned as a Page. Server errors and
// transport failures are retried up to Retries times.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	var (
		page    *Page
		lastErr error
	)

	for attempt := 0; attempt <= f.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		page, lastErr = f.get(ctx, rawURL)
		if lastErr == nil && page.StatusCode < http.StatusInternalServerError {
			return page, nil
		}
		if errors.Is(lastErr, context.Canceled) {
			break
		}
		slog.Debug("fetch: retryable failure", "url", rawURL, "attempt", attempt+1, "err", lastErr)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}

	return &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Collector returns a fresh colly collector that shares the Fetcher's
// transport, timeout, redirect policy and user agent. Each article fetch gets
// its own collector to avoid state leaking between pages.
func (f *Fetcher) Collector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxDepth(1),
		colly.MaxBodySize(maxBodyBytes),
	)
	c.WithTransport(f.transport)
	c.SetRequestTimeout(f.opts.Timeout)
	c.SetRedirectHandler(f.checkRedirect)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	})

	return c
}
