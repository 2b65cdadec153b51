// Package config provides configuration loading, validation, and secrets for the bot.
// It handles JSON config files, environment variable substitution, TAROT_ overrides and .env files.
package config

import (
	"sync"
	"time"

	"tarotbot/pkg/logx"
)

// Defaults applied to unset fields.
const (
	DefaultBaseURL           = "https://openrouter.ai/api/v1"
	DefaultModel             = "anthropic/claude-3.5-sonnet"
	DefaultMaxTokens         = 8000
	DefaultTemperature       = 0.3
	DefaultTimeoutSeconds    = 300
	DefaultMaxAttempts       = 5
	DefaultMinBackoffSeconds = 1
	DefaultMaxBackoffSeconds = 300
	DefaultMaxMessageLength  = 4096
	DefaultMaxCaptionLength  = 1024
	DefaultPollTimeout       = 30
	DefaultRetentionDays     = 30
	DefaultInitialCredits    = 3
	DefaultHTTPAddr          = ":8080"
	DefaultDataDir           = "data"

	// HTTPDisabled as http.addr turns the HTTP surface off.
	HTTPDisabled = "off"

	StrategyStaged = "staged"
	StrategySingle = "single"
)

// Secret names looked up through GetSecret.
const (
	SecretTelegramToken = "TELEGRAM_BOT_TOKEN"
	SecretOpenRouterKey = "OPENROUTER_API_KEY"
)

// Config is the whole bot configuration.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Metrics  MetricsConfig  `json:"metrics"`
	HTTP     HTTPConfig     `json:"http"`
	Assets   AssetsConfig   `json:"assets"`
	Storage  StorageConfig  `json:"storage"`
	LLM      LLMConfig      `json:"llm"`
	Credits  CreditsConfig  `json:"credits"`
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token              string `json:"token"`
	PollTimeoutSeconds int    `json:"poll_timeout_seconds"`
	MaxMessageLength   int    `json:"max_message_length"`
	MaxCaptionLength   int    `json:"max_caption_length"`
}

// LLMConfig configures completion calls and their retry budget.
type LLMConfig struct {
	BaseURL           string  `json:"base_url"`
	Model             string  `json:"model"`
	APIKey            string  `json:"api_key"`
	Strategy          string  `json:"strategy"`
	Referer           string  `json:"referer"`
	Title             string  `json:"title"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	MaxAttempts       int     `json:"max_attempts"`
	MinBackoffSeconds int     `json:"min_backoff_seconds"`
	MaxBackoffSeconds int     `json:"max_backoff_seconds"`
}

// Timeout bounds a single completion call.
func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// MinBackoff is the shortest wait between attempts.
func (c LLMConfig) MinBackoff() time.Duration {
	return time.Duration(c.MinBackoffSeconds) * time.Second
}

// MaxBackoff is the longest wait between attempts.
func (c LLMConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

type StorageConfig struct {
	DataDir          string `json:"data_dir"`
	Database         string `json:"database"`
	LogsDir          string `json:"logs_dir"`
	LogRetentionDays int    `json:"log_retention_days"`
}

// Retention is how long reading logs are kept.
func (c StorageConfig) Retention() time.Duration {
	return time.Duration(c.LogRetentionDays) * 24 * time.Hour
}

// CreditsConfig controls paid readings. Enabled defaults to true.
type CreditsConfig struct {
	Enabled *bool `json:"enabled"`
	Initial int   `json:"initial"`
}

// IsEnabled reports whether readings consume credits.
func (c CreditsConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

type AssetsConfig struct {
	CardsDir       string `json:"cards_dir"`
	BackgroundsDir string `json:"backgrounds_dir"`
	Catalog        string `json:"catalog"`
	Spreads        string `json:"spreads"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

// Enabled reports whether the HTTP surface should be served.
func (c HTTPConfig) Enabled() bool { return c.Addr != HTTPDisabled }

type MetricsConfig struct {
	PrometheusURL string `json:"prometheus_url"`
}

//nolint:gochecknoglobals // Lazily created package logger
var (
	logger     *logx.Logger
	loggerOnce sync.Once
)

func getLogger() *logx.Logger {
	loggerOnce.Do(func() {
		logger = logx.NewLogger("config")
	})
	return logger
}
