package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Defaults shared by every backend.
const (
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.7
)

// Provider names a model vendor.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// ProviderFor picks the vendor from a model name: GPT and o-series names go
// to OpenAI, gemini names to Google, everything else to Anthropic.
func ProviderFor(model string) Provider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "gemini"):
		return ProviderGemini
	case strings.Contains(m, "gpt"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	default:
		return ProviderAnthropic
	}
}

// Config selects and configures one backend.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// Timeout bounds each call when positive.
	Timeout time.Duration

	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
}

// New creates the backend for cfg.Model. Model, token and temperature
// settings on cfg override the per-provider ones.
func New(ctx context.Context, cfg Config) (Model, error) {
	var (
		m   Model
		err error
	)

	switch ProviderFor(cfg.Model) {
	case ProviderOpenAI:
		oc := cfg.OpenAI
		oc.Model = cfg.Model
		oc.MaxTokens = pick(cfg.MaxTokens, oc.MaxTokens)
		oc.Temperature = cfg.Temperature
		m, err = NewOpenAIClient(oc)
	case ProviderGemini:
		gc := cfg.Gemini
		gc.Model = cfg.Model
		gc.MaxTokens = pick(cfg.MaxTokens, gc.MaxTokens)
		gc.Temperature = cfg.Temperature
		m, err = NewGeminiClient(ctx, gc)
	default:
		ac := cfg.Anthropic
		ac.Model = cfg.Model
		ac.MaxTokens = pick(cfg.MaxTokens, ac.MaxTokens)
		ac.Temperature = cfg.Temperature
		m, err = NewAnthropicClient(ac)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s backend for %q: %w", ProviderFor(cfg.Model), cfg.Model, err)
	}

	return WithTimeout(m, cfg.Timeout), nil
}

func pick(preferred, fallback int64) int64 {
	if preferred > 0 {
		return preferred
	}
	return fallback
}

func orDefault(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}
