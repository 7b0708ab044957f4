// Package config handles YAML configuration loading, environment variable
// expansion, and validation for memerelay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Censor   CensorConfig   `yaml:"censor"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Search   SearchConfig   `yaml:"search"`
}

// Defaults applies default values to all unset sections.
func (c *Config) Defaults() {
	c.Server.defaults()
	c.Telegram.defaults()
	c.Storage.defaults()
	c.Censor.defaults()
	c.Scoring.defaults()
	c.Search.defaults()
}

// Validate checks all sections after defaults have been applied.
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.validate(),
		c.Telegram.validate(),
		c.Storage.validate(),
		c.Censor.validate(),
		c.Scoring.validate(),
		c.Search.validate(),
	)
}

// ServerConfig holds the HTTP gateway configuration.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *ServerConfig) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func (c *ServerConfig) validate() error {
	if c.Bind == "" {
		return errors.New("server: bind is required")
	}
	return nil
}

// TelegramConfig holds the Bot API configuration.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	APIURL        string `yaml:"api_url"`
	ChannelID     int64  `yaml:"channel_id"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func (c *TelegramConfig) defaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
}

func (c *TelegramConfig) validate() error {
	if c.Token == "" {
		return errors.New("telegram: token is required")
	}
	if !tokenPattern.MatchString(c.Token) {
		return errors.New("telegram: token format invalid (expected <bot_id>:<hash>)")
	}
	if c.ChannelID == 0 {
		return errors.New("telegram: channel_id is required")
	}
	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL)
	}
	if c.WebhookURL != "" {
		if u, err := url.Parse(c.WebhookURL); err != nil || u.Scheme != "https" {
			return fmt.Errorf("telegram: webhook_url must be an https URL, got %q", c.WebhookURL)
		}
	}
	return nil
}

// StorageConfig selects and configures the quota store driver.
type StorageConfig struct {
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig configures the sqlite driver.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WAL         *bool  `yaml:"wal"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c *StorageConfig) defaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "memerelay.db"
	}
	if c.SQLite.BusyTimeout == 0 {
		c.SQLite.BusyTimeout = 5000
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
}

// WALEnabled reports whether WAL mode is on (default true).
func (c *SQLiteConfig) WALEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *StorageConfig) validate() error {
	switch c.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("storage: invalid driver %q (must be \"sqlite\" or \"redis\")", c.Driver)
	}
	return nil
}

// CensorConfig holds the admission policy configuration.
type CensorConfig struct {
	MessageLimit    int           `yaml:"message_limit"`
	TimeHorizon     time.Duration `yaml:"time_horizon"`
	RetentionTTL    time.Duration `yaml:"retention_ttl"`
	AllowlistTTL    time.Duration `yaml:"allowlist_ttl"`
	ScoreThreshold  int           `yaml:"score_threshold"`
	DisplayTimezone string        `yaml:"display_timezone"`
}

func (c *CensorConfig) defaults() {
	if c.MessageLimit == 0 {
		c.MessageLimit = 2
	}
	if c.TimeHorizon <= 0 {
		c.TimeHorizon = 24 * time.Hour
	}
	if c.RetentionTTL <= 0 {
		c.RetentionTTL = 25 * time.Hour
	}
	if c.AllowlistTTL <= 0 {
		c.AllowlistTTL = 6 * 30 * 24 * time.Hour
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 7
	}
	if c.DisplayTimezone == "" {
		c.DisplayTimezone = "Europe/Berlin"
	}
}

func (c *CensorConfig) validate() error {
	if c.MessageLimit < 1 {
		return fmt.Errorf("censor: message_limit must be >= 1, got %d", c.MessageLimit)
	}
	// Retention must outlive the lookback window or expiry would eat
	// buckets the time censor still needs.
	if c.RetentionTTL <= c.TimeHorizon {
		return fmt.Errorf("censor: retention_ttl (%s) must exceed time_horizon (%s)", c.RetentionTTL, c.TimeHorizon)
	}
	if c.ScoreThreshold < 1 || c.ScoreThreshold > 10 {
		return fmt.Errorf("censor: score_threshold must be 1-10, got %d", c.ScoreThreshold)
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("censor: invalid display_timezone %q: %w", c.DisplayTimezone, err)
	}
	return nil
}

// ScoringConfig holds the OpenAI-compatible scoring endpoint configuration.
type ScoringConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (c *ScoringConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

func (c *ScoringConfig) validate() error {
	if c.Model == "" {
		return errors.New("scoring: model is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("scoring: base_url must be a valid http/https URL, got %q", c.BaseURL)
	}
	return nil
}

// SearchConfig holds the Custom Search news retriever configuration.
type SearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	CX      string `yaml:"cx"`
	Limit   int    `yaml:"limit"`
}

func (c *SearchConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if c.Limit == 0 {
		c.Limit = 3
	}
}

func (c *SearchConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.APIKey == "" || c.CX == "" {
		return errors.New("search: api_key and cx are required when search is enabled")
	}
	return nil
}
