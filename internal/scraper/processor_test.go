package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HTTPS://TV.Example.RU/news/1/", "https://tv.example.ru/news/1"},
		{"https://tv.example.ru/news/1?utm_source=vk&id=5#top", "https://tv.example.ru/news/1?id=5"},
		{"https://tv.example.ru/", "https://tv.example.ru/"},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalizeURL(tt.in), tt.in)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "бюдж", TruncateRunes("бюджет", 4))
	assert.Equal(t, "бюджет", TruncateRunes("бюджет", 10))
	assert.Equal(t, "", TruncateRunes("бюджет", 0))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c "))
}
