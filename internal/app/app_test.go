package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Saul-Punybz/regionwatch/internal/config"
	"github.com/Saul-Punybz/regionwatch/internal/scraper"
)

func TestFetchOptions(t *testing.T) {
	opts := FetchOptions(config.MonitorConfig{
		Timeout:      7 * time.Second,
		UserAgent:    "ua",
		MaxRedirects: 2,
		Retries:      1,
		PerHostConns: 4,
	})
	assert.Equal(t, scraper.FetchOptions{Timeout: 7 * time.Second, UserAgent: "ua", MaxRedirects: 2, Retries: 1, PerHostConns: 4}, opts)

	f := scraper.NewFetcher(FetchOptions(config.MonitorConfig{}))
	assert.Equal(t, scraper.DefaultUserAgent, f.Options().UserAgent)
}

func TestDefaultWindow(t *testing.T) {
	ws := DefaultWindow(config.MonitorConfig{WindowMode: "recent", WindowDays: 7})
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	r, err := ws.Resolve(now)
	assert.NoError(t, err)
	assert.Equal(t, 7, r.Days())
}
