// Package config handles configuration loading and management for finsight.
// It supports XDG config paths, project-level overrides, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backends.
const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"
	CacheBackendMemory = "memory"
)

// Config holds all configuration for finsight.
type Config struct {
	Models       ModelsConfig       `mapstructure:"models"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Timeouts     TimeoutsConfig     `mapstructure:"timeouts"`
	Log          LogConfig          `mapstructure:"log"`
	Server       ServerConfig       `mapstructure:"server"`
	Roster       RosterConfig       `mapstructure:"roster"`
	// DataDir holds the insight store and logs. Empty means ~/.finsight.
	DataDir string `mapstructure:"data_dir"`
}

// ModelsConfig selects the models each role runs on.
// Empty specialist and writer models keep the roster's choice.
type ModelsConfig struct {
	Orchestrator string  `mapstructure:"orchestrator"`
	Specialists  string  `mapstructure:"specialists"`
	Writer       string  `mapstructure:"writer"`
	MaxTokens    int64   `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// ProviderConfig holds one data provider's settings.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ProvidersConfig holds the data providers the tools call.
type ProvidersConfig struct {
	Finnhub ProviderConfig `mapstructure:"finnhub"`
	FMP     ProviderConfig `mapstructure:"fmp"`
}

// CacheConfig selects the insight store backend.
type CacheConfig struct {
	// Backend is file, sqlite or memory.
	Backend string `mapstructure:"backend"`
	// Path overrides the store location under DataDir.
	Path string `mapstructure:"path"`
	// Driver is the SQLite driver: sqlite (pure Go) or sqlite3 (cgo).
	Driver string `mapstructure:"driver"`
	// Watch reloads the file store when another process rewrites it.
	Watch bool `mapstructure:"watch"`
}

// OrchestratorConfig holds dispatch settings.
type OrchestratorConfig struct {
	HistorySize int  `mapstructure:"history_size"`
	Parallel    bool `mapstructure:"parallel"`
	MaxParallel int  `mapstructure:"max_parallel"`
	// Writer turns off final synthesis when false.
	Writer bool `mapstructure:"writer"`
	// Tools lets plans call data tools directly.
	Tools bool `mapstructure:"tools"`
}

// TimeoutsConfig bounds backend calls.
type TimeoutsConfig struct {
	Model time.Duration `mapstructure:"model"`
	Tool  time.Duration `mapstructure:"tool"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// RosterConfig points at a roster file. Empty uses the built-in team.
type RosterConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, .env and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, FINSIGHT_CACHE_BACKEND, ...)
// 2. .env in the current directory
// 3. Project config (.finsight.yaml in current directory or parent)
// 4. User config (~/.config/finsight/config.yaml)
// 5. Built-in defaults
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		// Merge project config (takes precedence)
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
// Environment variables still take precedence.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// newViper returns a viper with defaults and environment bindings.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FINSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map the provider variables the keys are usually kept in.
	_ = v.BindEnv("anthropic.api_key", "FINSIGHT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai.api_key", "FINSIGHT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("gemini.api_key", "FINSIGHT_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("providers.finnhub.api_key", "FINSIGHT_PROVIDERS_FINNHUB_API_KEY", "FINNHUB_API_KEY")
	_ = v.BindEnv("providers.fmp.api_key", "FINSIGHT_PROVIDERS_FMP_API_KEY", "FMP_API_KEY")
	_ = v.BindEnv("providers.fmp.base_url", "FINSIGHT_PROVIDERS_FMP_BASE_URL", "FMP_ENDPOINT", "FMP_Endpoint")

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	cfg.Gemini.APIKey = expandEnv(cfg.Gemini.APIKey)
	cfg.Providers.Finnhub.APIKey = expandEnv(cfg.Providers.Finnhub.APIKey)
	cfg.Providers.FMP.APIKey = expandEnv(cfg.Providers.FMP.APIKey)
	cfg.DataDir = expandEnv(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the environment. Variables already set win,
// and a missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendSQLite, CacheBackendMemory:
	default:
		return fmt.Errorf("cache.backend %q: want %s, %s or %s",
			c.Cache.Backend, CacheBackendFile, CacheBackendSQLite, CacheBackendMemory)
	}
	switch c.Cache.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("cache.driver %q: want sqlite or sqlite3", c.Cache.Driver)
	}
	if c.Orchestrator.HistorySize < 0 {
		return fmt.Errorf("orchestrator.history_size must not be negative")
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("models.orchestrator", cfg.Models.Orchestrator)
	v.Set("models.specialists", cfg.Models.Specialists)
	v.Set("models.writer", cfg.Models.Writer)
	v.Set("models.max_tokens", cfg.Models.MaxTokens)
	v.Set("models.temperature", cfg.Models.Temperature)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("openai.api_key", cfg.OpenAI.APIKey)
	v.Set("openai.base_url", cfg.OpenAI.BaseURL)
	v.Set("gemini.api_key", cfg.Gemini.APIKey)
	v.Set("providers.finnhub.api_key", cfg.Providers.Finnhub.APIKey)
	v.Set("providers.finnhub.base_url", cfg.Providers.Finnhub.BaseURL)
	v.Set("providers.fmp.api_key", cfg.Providers.FMP.APIKey)
	v.Set("providers.fmp.base_url", cfg.Providers.FMP.BaseURL)
	v.Set("cache.backend", cfg.Cache.Backend)
	v.Set("cache.path", cfg.Cache.Path)
	v.Set("cache.driver", cfg.Cache.Driver)
	v.Set("cache.watch", cfg.Cache.Watch)
	v.Set("orchestrator.history_size", cfg.Orchestrator.HistorySize)
	v.Set("orchestrator.parallel", cfg.Orchestrator.Parallel)
	v.Set("orchestrator.max_parallel", cfg.Orchestrator.MaxParallel)
	v.Set("orchestrator.writer", cfg.Orchestrator.Writer)
	v.Set("orchestrator.tools", cfg.Orchestrator.Tools)
	v.Set("timeouts.model", cfg.Timeouts.Model.String())
	v.Set("timeouts.tool", cfg.Timeouts.Tool.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("roster.path", cfg.Roster.Path)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// ResolveDataDir returns DataDir, defaulting to ~/.finsight.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finsight"
	}
	return filepath.Join(home, ".finsight")
}

// CachePath returns where the insight store lives for the configured backend.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	name := "insights.json"
	if c.Cache.Backend == CacheBackendSQLite {
		name = "insights.db"
	}
	return filepath.Join(c.ResolveDataDir(), name)
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("models.orchestrator", d.Models.Orchestrator)
	v.SetDefault("models.specialists", d.Models.Specialists)
	v.SetDefault("models.writer", d.Models.Writer)
	v.SetDefault("models.max_tokens", d.Models.MaxTokens)
	v.SetDefault("models.temperature", d.Models.Temperature)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gemini.api_key", "")

	v.SetDefault("providers.finnhub.api_key", "")
	v.SetDefault("providers.finnhub.base_url", d.Providers.Finnhub.BaseURL)
	v.SetDefault("providers.fmp.api_key", "")
	v.SetDefault("providers.fmp.base_url", d.Providers.FMP.BaseURL)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.driver", d.Cache.Driver)
	v.SetDefault("cache.watch", d.Cache.Watch)

	v.SetDefault("orchestrator.history_size", d.Orchestrator.HistorySize)
	v.SetDefault("orchestrator.parallel", d.Orchestrator.Parallel)
	v.SetDefault("orchestrator.max_parallel", d.Orchestrator.MaxParallel)
	v.SetDefault("orchestrator.writer", d.Orchestrator.Writer)
	v.SetDefault("orchestrator.tools", d.Orchestrator.Tools)

	v.SetDefault("timeouts.model", d.Timeouts.Model.String())
	v.SetDefault("timeouts.tool", d.Timeouts.Tool.String())

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("roster.path", "")
	v.SetDefault("data_dir", "")
}

// getUserConfigDir returns the XDG config directory for finsight.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "finsight")
	}

	// Fall back to ~/.config/finsight
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "finsight")
	}
	return filepath.Join(home, ".config", "finsight")
}

// findProjectConfig searches for .finsight.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".finsight.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			Orchestrator: "claude-sonnet-4-20250514",
			MaxTokens:    300,
			Temperature:  0.7,
		},
		Providers: ProvidersConfig{
			Finnhub: ProviderConfig{BaseURL: "https://finnhub.io/api/v1"},
			FMP:     ProviderConfig{BaseURL: "https://financialmodelingprep.com/api"},
		},
		Cache: CacheConfig{
			Backend: CacheBackendFile,
			Driver:  "sqlite",
			Watch:   true,
		},
		Orchestrator: OrchestratorConfig{
			HistorySize: 10,
			MaxParallel: 4,
			Writer:      true,
		},
		Timeouts: TimeoutsConfig{
			Model: 2 * time.Minute,
			Tool:  15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}
