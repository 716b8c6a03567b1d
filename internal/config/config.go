// Package config handles configuration loading for newsbrief.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"        yaml:"api"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"      yaml:"cache"`
	Fetch     FetchConfig     `mapstructure:"fetch"      yaml:"fetch"`
	Inference InferenceConfig `mapstructure:"inference"  yaml:"inference"`
	Locale    LocaleConfig    `mapstructure:"locale"     yaml:"locale"`
	Logging   LoggingConfig   `mapstructure:"logging"    yaml:"logging"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// RateLimitConfig holds the per-client admission policy.
type RateLimitConfig struct {
	Requests  int `mapstructure:"requests"   yaml:"requests"`   // admitted per window
	WindowSec int `mapstructure:"window_sec" yaml:"window_sec"` // sliding window length
}

// Window returns the sliding window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSec) * time.Second
}

// CacheConfig holds result cache policy knobs.
type CacheConfig struct {
	TTLSec     int `mapstructure:"ttl_sec"     yaml:"ttl_sec"`
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

// TTL returns the entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// FetchConfig holds article acquisition settings.
type FetchConfig struct {
	Source       string   `mapstructure:"source"        yaml:"source"` // "topic" or "rss"
	BaseURL      string   `mapstructure:"base_url"      yaml:"base_url"`
	FeedURLs     []string `mapstructure:"feed_urls"     yaml:"feed_urls"`
	ArticleCount int      `mapstructure:"article_count" yaml:"article_count"`
	TimeoutSec   int      `mapstructure:"timeout_sec"   yaml:"timeout_sec"`
}

// Timeout returns the per-call fetch timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// InferenceConfig holds model-serving settings. An empty endpoint
// selects the offline lexicon engine.
type InferenceConfig struct {
	Endpoint    string `mapstructure:"endpoint"    yaml:"endpoint"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	TimeoutSec  int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns the per-call inference timeout.
func (c InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// LocaleConfig holds translation and text-to-speech settings.
type LocaleConfig struct {
	Enabled        bool   `mapstructure:"enabled"         yaml:"enabled"`
	TranslateURL   string `mapstructure:"translate_url"   yaml:"translate_url"`
	TTSURL         string `mapstructure:"tts_url"         yaml:"tts_url"`
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language"`
	TimeoutSec     int    `mapstructure:"timeout_sec"     yaml:"timeout_sec"`
}

// Timeout returns the per-call localization timeout.
func (c LocaleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.newsbrief/config.yaml (home directory)
//  3. /etc/newsbrief/config.yaml (system)
//
// Environment variables override config file values.
// Format: NEWSBRIEF_<SECTION>_<KEY>, e.g., NEWSBRIEF_API_PORT
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".newsbrief"))
	v.AddConfigPath("/etc/newsbrief")

	v.SetEnvPrefix("NEWSBRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("NEWSBRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Rate limit defaults: 10 requests per client per minute
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window_sec", 60)

	// Cache defaults
	v.SetDefault("cache.ttl_sec", 600) // 10 minutes
	v.SetDefault("cache.max_entries", 256)

	// Fetch defaults
	v.SetDefault("fetch.source", "topic")
	v.SetDefault("fetch.base_url", "https://www.indiatvnews.com")
	v.SetDefault("fetch.article_count", 5)
	v.SetDefault("fetch.timeout_sec", 20)

	// Inference defaults: offline lexicon engine, 3 concurrent calls
	v.SetDefault("inference.endpoint", "")
	v.SetDefault("inference.concurrency", 3)
	v.SetDefault("inference.timeout_sec", 30)

	// Locale defaults
	v.SetDefault("locale.enabled", true)
	v.SetDefault("locale.translate_url", "http://localhost:5000/translate")
	v.SetDefault("locale.tts_url", "https://translate.google.com/translate_tts")
	v.SetDefault("locale.target_language", "hi")
	v.SetDefault("locale.timeout_sec", 30)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
