package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Model.ModelID != "anthropic.claude-3-5-sonnet-20241022-v2:0" {
		t.Errorf("unexpected default model: %s", cfg.Model.ModelID)
	}
	if cfg.Model.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("unexpected retry delays: base=%v max=%v", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}
	if !cfg.Retry.Jitter {
		t.Error("jitter should default to enabled")
	}
	if cfg.Guardrails.MinInputLength != 3 || cfg.Guardrails.MaxInputLength != 10000 {
		t.Errorf("unexpected guardrail lengths: %d/%d",
			cfg.Guardrails.MinInputLength, cfg.Guardrails.MaxInputLength)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestProduction(t *testing.T) {
	cfg := Production()

	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("expected 5 retries in production, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.MaxDelay != 60*time.Second {
		t.Errorf("expected 60s max delay, got %v", cfg.Retry.MaxDelay)
	}
	if cfg.Timeouts.Request != 120*time.Second {
		t.Errorf("expected 120s request timeout, got %v", cfg.Timeouts.Request)
	}
	if cfg.Logging.LogResponses {
		t.Error("response logging should be off in production")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cartparse.toml")
	content := `
[model]
model_id = "anthropic.claude-3-haiku-20240307-v1:0"
max_tokens = 1024

[retry]
max_retries = 2
base_delay = "500ms"
max_delay = "10s"

[guardrails]
guardrail_id = "${TEST_GUARDRAIL_ID}"

[logging]
log_responses = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_GUARDRAIL_ID", "gr-12345")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Model.ModelID != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("model not overridden: %s", cfg.Model.ModelID)
	}
	if cfg.Model.MaxTokens != 1024 {
		t.Errorf("max_tokens not overridden: %d", cfg.Model.MaxTokens)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("base_delay not parsed: %v", cfg.Retry.BaseDelay)
	}
	if cfg.Guardrails.GuardrailID != "gr-12345" {
		t.Errorf("env expansion failed: %q", cfg.Guardrails.GuardrailID)
	}
	// Untouched sections keep defaults
	if cfg.Model.Temperature != 0.1 {
		t.Errorf("temperature should keep default: %v", cfg.Model.Temperature)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Model.MaxTokens != 4096 {
		t.Errorf("expected defaults, got max_tokens=%d", cfg.Model.MaxTokens)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-opus-20240229-v1:0")
	t.Setenv("BEDROCK_MAX_TOKENS", "2048")
	t.Setenv("BEDROCK_MAX_RETRIES", "7")
	t.Setenv("BEDROCK_TIMEOUT_SECONDS", "90")
	t.Setenv("UNCERTAINTY_THRESHOLD", "0.8")
	t.Setenv("KNOWLEDGE_BASE_ID", "kb-999")

	cfg := Default()
	cfg.substituteEnvVars()

	if cfg.Model.ModelID != "anthropic.claude-3-opus-20240229-v1:0" {
		t.Errorf("BEDROCK_MODEL_ID not applied: %s", cfg.Model.ModelID)
	}
	if cfg.Model.MaxTokens != 2048 {
		t.Errorf("BEDROCK_MAX_TOKENS not applied: %d", cfg.Model.MaxTokens)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("BEDROCK_MAX_RETRIES not applied: %d", cfg.Retry.MaxRetries)
	}
	if cfg.Timeouts.Request != 90*time.Second {
		t.Errorf("BEDROCK_TIMEOUT_SECONDS not applied: %v", cfg.Timeouts.Request)
	}
	if cfg.Extraction.UncertaintyThreshold != 0.8 {
		t.Errorf("UNCERTAINTY_THRESHOLD not applied: %v", cfg.Extraction.UncertaintyThreshold)
	}
	if cfg.KnowledgeBase.KnowledgeBaseID != "kb-999" {
		t.Errorf("KNOWLEDGE_BASE_ID not applied: %s", cfg.KnowledgeBase.KnowledgeBaseID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty model id", func(c *Config) { c.Model.ModelID = "" }, true},
		{"zero max tokens", func(c *Config) { c.Model.MaxTokens = 0 }, true},
		{"temperature above one", func(c *Config) { c.Model.Temperature = 1.5 }, true},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, true},
		{"max delay below base", func(c *Config) {
			c.Retry.BaseDelay = 10 * time.Second
			c.Retry.MaxDelay = time.Second
		}, true},
		{"threshold out of range", func(c *Config) { c.Extraction.UncertaintyThreshold = 1.2 }, true},
		{"max length below min", func(c *Config) {
			c.Guardrails.MinInputLength = 100
			c.Guardrails.MaxInputLength = 50
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
