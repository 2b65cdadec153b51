package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override, e.g. TAROT_LLM_MODEL.
const EnvPrefix = "TAROT_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig loads and validates configuration from a JSON file with environment
// variable substitution. An empty path loads defaults and environment overrides only.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var config Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Replace environment variable placeholders.
		dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
			envVar := match[2 : len(match)-1] // Remove ${ and }
			if value := os.Getenv(envVar); value != "" {
				return value
			}
			return match // Return original if env var not found
		})

		if err := json.Unmarshal([]byte(dataStr), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	applyEnvOverrides(&config)
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment. Variables
// that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	getLogger().Debug("Loaded environment from %s", path)
	return nil
}

func applyEnvOverrides(config *Config) {
	v := reflect.ValueOf(config).Elem()
	applyEnvOverridesRecursive(v, v.Type(), EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		jsonTag := fieldType.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		fieldName := strings.Split(jsonTag, ",")[0]
		envKey := strings.ToUpper(prefix + fieldName)

		if field.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(field, field.Type(), envKey+"_")
			continue
		}
		if envValue := os.Getenv(envKey); envValue != "" {
			setFieldFromEnv(field, envKey, envValue)
		}
	}
}

func setFieldFromEnv(field reflect.Value, key, envValue string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int:
		if val, err := strconv.Atoi(envValue); err == nil {
			field.SetInt(int64(val))
		} else {
			getLogger().Warn("Ignoring %s: %v", key, err)
		}
	case reflect.Float64:
		if val, err := strconv.ParseFloat(envValue, 64); err == nil {
			field.SetFloat(val)
		} else {
			getLogger().Warn("Ignoring %s: %v", key, err)
		}
	case reflect.Ptr:
		if field.Type().Elem().Kind() != reflect.Bool {
			return
		}
		if val, err := strconv.ParseBool(envValue); err == nil {
			field.Set(reflect.ValueOf(&val))
		} else {
			getLogger().Warn("Ignoring %s: %v", key, err)
		}
	}
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(config *Config) {
	tg := &config.Telegram
	if tg.PollTimeoutSeconds == 0 {
		tg.PollTimeoutSeconds = DefaultPollTimeout
	}
	if tg.MaxMessageLength == 0 {
		tg.MaxMessageLength = DefaultMaxMessageLength
	}
	if tg.MaxCaptionLength == 0 {
		tg.MaxCaptionLength = DefaultMaxCaptionLength
	}

	l := &config.LLM
	if l.BaseURL == "" {
		l.BaseURL = DefaultBaseURL
	}
	if l.Model == "" {
		l.Model = DefaultModel
	}
	if l.Strategy == "" {
		l.Strategy = StrategyStaged
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = DefaultMaxTokens
	}
	if l.Temperature == 0 {
		l.Temperature = DefaultTemperature
	}
	if l.TimeoutSeconds == 0 {
		l.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if l.MaxAttempts == 0 {
		l.MaxAttempts = DefaultMaxAttempts
	}
	if l.MinBackoffSeconds == 0 {
		l.MinBackoffSeconds = DefaultMinBackoffSeconds
	}
	if l.MaxBackoffSeconds == 0 {
		l.MaxBackoffSeconds = DefaultMaxBackoffSeconds
	}
	if l.Title == "" {
		l.Title = "Tarot Bot"
	}

	s := &config.Storage
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir
	}
	if s.Database == "" {
		s.Database = filepath.Join(s.DataDir, "tarot.db")
	}
	if s.LogsDir == "" {
		s.LogsDir = filepath.Join(s.DataDir, "readings")
	}
	if s.LogRetentionDays == 0 {
		s.LogRetentionDays = DefaultRetentionDays
	}

	if config.Credits.Initial == 0 {
		config.Credits.Initial = DefaultInitialCredits
	}

	a := &config.Assets
	if a.CardsDir == "" {
		a.CardsDir = filepath.Join("assets", "cards")
	}
	if a.BackgroundsDir == "" {
		a.BackgroundsDir = filepath.Join("assets", "backgrounds")
	}

	if config.HTTP.Addr == "" {
		config.HTTP.Addr = DefaultHTTPAddr
	}
}

func validateConfig(config *Config) error {
	l := config.LLM
	if l.Strategy != StrategyStaged && l.Strategy != StrategySingle {
		return fmt.Errorf("llm.strategy must be %q or %q, got %q", StrategyStaged, StrategySingle, l.Strategy)
	}
	if !strings.Contains(l.Model, "/") {
		return fmt.Errorf("llm.model must be a provider/model id, got %q", l.Model)
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0.0 and 2.0")
	}
	if l.TimeoutSeconds < 0 || l.MaxAttempts < 0 {
		return fmt.Errorf("llm.timeout_seconds and llm.max_attempts must not be negative")
	}
	if l.MinBackoffSeconds < 0 || l.MaxBackoffSeconds < l.MinBackoffSeconds {
		return fmt.Errorf("llm backoff bounds are invalid: min %ds, max %ds", l.MinBackoffSeconds, l.MaxBackoffSeconds)
	}

	tg := config.Telegram
	if tg.MaxMessageLength < 0 || tg.MaxCaptionLength < 0 || tg.PollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram limits must not be negative")
	}
	if config.Storage.LogRetentionDays < 0 {
		return fmt.Errorf("storage.log_retention_days must not be negative")
	}
	if config.Credits.Initial < 0 {
		return fmt.Errorf("credits.initial must not be negative")
	}
	return nil
}

// ResolveCredentials fills the bot token and API key from the secrets file or
// environment when the config leaves them empty, and fails if either is still missing.
func (c *Config) ResolveCredentials() error {
	if c.Telegram.Token == "" {
		if v, err := GetSecret(SecretTelegramToken); err == nil {
			c.Telegram.Token = v
		}
	}
	if c.LLM.APIKey == "" {
		if v, err := GetSecret(SecretOpenRouterKey); err == nil {
			c.LLM.APIKey = v
		}
	}
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, SecretTelegramToken)
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, SecretOpenRouterKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
