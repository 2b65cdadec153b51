package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LLM.Model != DefaultModel {
		t.Errorf("Expected model %s, got %s", DefaultModel, cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 8000 || cfg.LLM.Temperature != 0.3 {
		t.Errorf("Unexpected generation defaults: %d, %v", cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout() != 300*time.Second || cfg.LLM.MaxAttempts != 5 {
		t.Errorf("Unexpected retry defaults: %v, %d", cfg.LLM.Timeout(), cfg.LLM.MaxAttempts)
	}
	if cfg.LLM.MinBackoff() != time.Second || cfg.LLM.MaxBackoff() != 300*time.Second {
		t.Errorf("Unexpected backoff bounds: %v..%v", cfg.LLM.MinBackoff(), cfg.LLM.MaxBackoff())
	}
	if cfg.LLM.Strategy != StrategyStaged {
		t.Errorf("Expected staged strategy, got %s", cfg.LLM.Strategy)
	}
	if cfg.Telegram.MaxMessageLength != 4096 || cfg.Telegram.MaxCaptionLength != 1024 {
		t.Errorf("Unexpected telegram limits: %+v", cfg.Telegram)
	}
	if cfg.Storage.Database != filepath.Join("data", "tarot.db") {
		t.Errorf("Unexpected database path: %s", cfg.Storage.Database)
	}
	if cfg.Storage.Retention() != 30*24*time.Hour {
		t.Errorf("Unexpected retention: %v", cfg.Storage.Retention())
	}
	if !cfg.Credits.IsEnabled() || cfg.Credits.Initial != 3 {
		t.Errorf("Unexpected credits: %+v", cfg.Credits)
	}
	if !cfg.HTTP.Enabled() || cfg.HTTP.Addr != ":8080" {
		t.Errorf("Unexpected http config: %+v", cfg.HTTP)
	}
}

func TestLoadConfigFileAndSubstitution(t *testing.T) {
	t.Setenv("TEST_TAROT_MODEL", "openai/gpt-4o")
	path := writeConfig(t, `{
		"llm": {"model": "${TEST_TAROT_MODEL}", "strategy": "single", "max_tokens": 1200},
		"credits": {"enabled": false},
		"http": {"addr": "off"},
		"storage": {"data_dir": "/var/lib/tarot"}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LLM.Model != "openai/gpt-4o" {
		t.Errorf("Placeholder not substituted: %s", cfg.LLM.Model)
	}
	if cfg.LLM.Strategy != StrategySingle || cfg.LLM.MaxTokens != 1200 {
		t.Errorf("File values not applied: %+v", cfg.LLM)
	}
	if cfg.Credits.IsEnabled() {
		t.Error("Expected credits to be disabled")
	}
	if cfg.HTTP.Enabled() {
		t.Error("Expected http to be disabled")
	}
	if cfg.Storage.LogsDir != filepath.Join("/var/lib/tarot", "readings") {
		t.Errorf("Logs dir should follow data dir: %s", cfg.Storage.LogsDir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TAROT_LLM_MODEL", "google/gemini-pro")
	t.Setenv("TAROT_LLM_TEMPERATURE", "0.7")
	t.Setenv("TAROT_LLM_MAX_ATTEMPTS", "2")
	t.Setenv("TAROT_TELEGRAM_MAX_MESSAGE_LENGTH", "not-a-number")
	t.Setenv("TAROT_CREDITS_ENABLED", "false")
	path := writeConfig(t, `{"llm": {"model": "openai/gpt-4o"}}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LLM.Model != "google/gemini-pro" {
		t.Errorf("Env override not applied: %s", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxAttempts != 2 {
		t.Errorf("Numeric overrides not applied: %+v", cfg.LLM)
	}
	if cfg.Telegram.MaxMessageLength != DefaultMaxMessageLength {
		t.Errorf("Malformed override should be ignored, got %d", cfg.Telegram.MaxMessageLength)
	}
	if cfg.Credits.IsEnabled() {
		t.Error("Bool override not applied")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad strategy", `{"llm": {"strategy": "parallel"}}`},
		{"model without provider", `{"llm": {"model": "gpt-4o"}}`},
		{"temperature out of range", `{"llm": {"temperature": 3}}`},
		{"inverted backoff", `{"llm": {"min_backoff_seconds": 10, "max_backoff_seconds": 5}}`},
		{"negative credits", `{"credits": {"initial": -1}}`},
		{"malformed json", `{"llm": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TAROT_DOTENV_ONLY=from-file\nTAROT_DOTENV_SET=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TAROT_DOTENV_SET", "from-env")
	t.Setenv("TAROT_DOTENV_ONLY", "")
	os.Unsetenv("TAROT_DOTENV_ONLY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("TAROT_DOTENV_ONLY"); got != "from-file" {
		t.Errorf("Expected value from .env, got %q", got)
	}
	if got := os.Getenv("TAROT_DOTENV_SET"); got != "from-env" {
		t.Errorf("Existing env must win, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("Missing .env should be ignored: %v", err)
	}
}

func TestResolveCredentials(t *testing.T) {
	SetDecryptedSecrets(map[string]string{SecretTelegramToken: "tg-from-secrets"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv(SecretOpenRouterKey, "sk-or-env")

	cfg := &Config{}
	if err := cfg.ResolveCredentials(); err != nil {
		t.Fatalf("ResolveCredentials failed: %v", err)
	}
	if cfg.Telegram.Token != "tg-from-secrets" || cfg.LLM.APIKey != "sk-or-env" {
		t.Errorf("Unexpected credentials: %q, %q", cfg.Telegram.Token, cfg.LLM.APIKey)
	}

	SetDecryptedSecrets(nil)
	t.Setenv(SecretOpenRouterKey, "")
	t.Setenv(SecretTelegramToken, "")
	if err := (&Config{}).ResolveCredentials(); err == nil {
		t.Error("Expected missing credentials error")
	}
}
