package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// Provider names accepted by the key helpers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderFinnhub   = "finnhub"
	ProviderFMP       = "fmp"
)

// Providers lists every provider with a key, in display order.
var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderFinnhub, ProviderFMP}

// envVars are the environment variables checked before the config file.
var envVars = map[string][]string{
	ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	ProviderOpenAI:    {"OPENAI_API_KEY"},
	ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderFinnhub:   {"FINNHUB_API_KEY"},
	ProviderFMP:       {"FMP_API_KEY"},
}

// GetAPIKey returns the key for provider.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config, provider string) (string, error) {
	names, ok := envVars[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	// First check environment variables directly
	for _, name := range names {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}

	// Then check config
	if key := configKey(cfg, provider); key != "" {
		return key, nil
	}

	return "", fmt.Errorf("%w for %s (set %s)", ErrNoAPIKey, provider, names[0])
}

func configKey(cfg *Config, provider string) string {
	if cfg == nil {
		return ""
	}
	var raw string
	switch provider {
	case ProviderAnthropic:
		raw = cfg.Anthropic.APIKey
	case ProviderOpenAI:
		raw = cfg.OpenAI.APIKey
	case ProviderGemini:
		raw = cfg.Gemini.APIKey
	case ProviderFinnhub:
		raw = cfg.Providers.Finnhub.APIKey
	case ProviderFMP:
		raw = cfg.Providers.FMP.APIKey
	}
	// Expand any remaining env var references
	key := os.ExpandEnv(raw)
	if key == "" || strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the provider's key was sourced from.
func GetAPIKeySource(cfg *Config, provider string) KeySource {
	for _, name := range envVars[provider] {
		if os.Getenv(name) != "" {
			return KeySourceEnv
		}
	}
	if configKey(cfg, provider) != "" {
		return KeySourceConfig
	}
	return KeySourceNone
}
