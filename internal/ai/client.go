// Package ai provides the external text-analysis clients used to summarize
// monitoring matches.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Saul-Punybz/regionwatch/internal/config"
)

// maxContentRunes caps the text sent to a provider in one request.
const maxContentRunes = 8000

// ErrUnauthorized means the provider rejected our credentials and a fresh
// token could not be obtained. Callers treat it as fatal for the run.
var ErrUnauthorized = errors.New("ai: unauthorized")

// Usage reports what one analysis call cost.
type Usage struct {
	Model            string        `json:"model"`
	Temperature      float64       `json:"temperature"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Duration         time.Duration `json:"duration"`
}

// Analyzer sends text plus an instruction to a language model.
type Analyzer interface {
	Analyze(ctx context.Context, text, prompt string) (string, Usage, error)
}

// New returns the Analyzer selected by cfg.Provider, or nil when analysis is
// switched off.
func New(cfg config.AIConfig) (Analyzer, error) {
	switch cfg.Provider {
	case "", "none", "off":
		return nil, nil
	case "gigachat":
		if cfg.GigaChat.AuthKey == "" {
			return nil, errors.New("ai: GIGACHAT_AUTH_KEY is not set")
		}
		return NewGigaChatClient(cfg.GigaChat), nil
	case "ollama":
		return NewOllamaClient(cfg.Ollama.Host, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}
}

// AnalysisPrompt is the instruction used to summarize matches for a theme.
func AnalysisPrompt(theme, siteName string) string {
	return fmt.Sprintf(`Analyze the following list of articles published by %s and answer on the theme "%s".

RULES:
- Write in the same language as the articles
- Summarize only information relevant to "%s"
- Be factual and concise, 3-5 sentences
- Do NOT add commentary or disclaimers`, siteName, theme, theme)
}

func buildMessage(text, prompt string) string {
	return prompt + "\n\nText:\n" + truncateRunes(text, maxContentRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
