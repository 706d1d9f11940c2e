package config

import (
	"errors"
	"strings"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{}, ProviderAnthropic)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-test-key" {
			t.Errorf("expected 'sk-ant-test-key', got %q", key)
		}
	})

	t.Run("gemini falls back to GOOGLE_API_KEY", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_API_KEY", "google-key")

		key, err := GetAPIKey(nil, ProviderGemini)
		if err != nil || key != "google-key" {
			t.Errorf("GetAPIKey() = %q, %v; want google-key", key, err)
		}
	})

	t.Run("from config", func(t *testing.T) {
		clearEnv(t)
		cfg := &Config{Providers: ProvidersConfig{FMP: ProviderConfig{APIKey: "fmp-config-key"}}}

		key, err := GetAPIKey(cfg, ProviderFMP)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "fmp-config-key" {
			t.Errorf("expected 'fmp-config-key', got %q", key)
		}
	})

	t.Run("unexpanded reference", func(t *testing.T) {
		clearEnv(t)
		cfg := &Config{OpenAI: OpenAIConfig{APIKey: "${UNSET_FINSIGHT_TEST_KEY}"}}

		_, err := GetAPIKey(cfg, ProviderOpenAI)
		if !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("no key configured", func(t *testing.T) {
		clearEnv(t)

		_, err := GetAPIKey(&Config{}, ProviderFinnhub)
		if !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
		if !strings.Contains(err.Error(), "FINNHUB_API_KEY") {
			t.Errorf("error %q does not name the variable", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := GetAPIKey(&Config{}, "bloomberg"); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", "(not set)"},
		{"short", "short", "***"},
		{"exactly 15", "sk-ant-12345678", "***"},
		{"normal", "sk-ant-REDACTED", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskAPIKey(tt.key); got != tt.want {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGetAPIKeySource(t *testing.T) {
	clearEnv(t)
	cfg := &Config{OpenAI: OpenAIConfig{APIKey: "sk-config"}}

	if got := GetAPIKeySource(cfg, ProviderOpenAI); got != KeySourceConfig {
		t.Errorf("GetAPIKeySource() = %q, want %q", got, KeySourceConfig)
	}
	if got := GetAPIKeySource(cfg, ProviderGemini); got != KeySourceNone {
		t.Errorf("GetAPIKeySource() = %q, want %q", got, KeySourceNone)
	}

	t.Setenv("OPENAI_API_KEY", "sk-env")
	if got := GetAPIKeySource(cfg, ProviderOpenAI); got != KeySourceEnv {
		t.Errorf("GetAPIKeySource() = %q, want %q", got, KeySourceEnv)
	}
}
