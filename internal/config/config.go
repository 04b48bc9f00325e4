// Package config provides configuration management for cartparse.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure
type Config struct {
	AWS           AWSConfig           `toml:"aws"`
	Model         ModelConfig         `toml:"model"`
	Retry         RetryConfig         `toml:"retry"`
	Timeouts      TimeoutConfig       `toml:"timeouts"`
	Guardrails    GuardrailsConfig    `toml:"guardrails"`
	KnowledgeBase KnowledgeBaseConfig `toml:"knowledge_base"`
	Extraction    ExtractionConfig    `toml:"extraction"`
	Embedding     EmbeddingConfig     `toml:"embedding"`
	Logging       LoggingConfig       `toml:"logging"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
}

// AWSConfig contains AWS credential and region settings
type AWSConfig struct {
	Region          string `toml:"region"`
	Profile         string `toml:"profile"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// ModelConfig contains model invocation parameters
type ModelConfig struct {
	ModelID          string   `toml:"model_id"`
	AnthropicVersion string   `toml:"anthropic_version"`
	MaxTokens        int      `toml:"max_tokens"`
	Temperature      float64  `toml:"temperature"`
	TopP             float64  `toml:"top_p"`
	TopK             int      `toml:"top_k"`
	StopSequences    []string `toml:"stop_sequences"`
}

// RetryConfig contains backoff settings for transient failures
type RetryConfig struct {
	MaxRetries int           `toml:"max_retries"`
	BaseDelay  time.Duration `toml:"base_delay"`
	MaxDelay   time.Duration `toml:"max_delay"`
	Jitter     bool          `toml:"jitter"`
}

// TimeoutConfig contains transport timeouts applied per attempt
type TimeoutConfig struct {
	Connect time.Duration `toml:"connect"`
	Request time.Duration `toml:"request"`
}

// GuardrailsConfig contains input/output safety settings
type GuardrailsConfig struct {
	GuardrailID      string `toml:"guardrail_id"`
	GuardrailVersion string `toml:"guardrail_version"`
	MinInputLength   int    `toml:"min_input_length"`
	MaxInputLength   int    `toml:"max_input_length"`
	MaxOutputItems   int    `toml:"max_output_items"`
	// LowConfidenceFloor marks output items below it as informational violations
	LowConfidenceFloor float64 `toml:"low_confidence_floor"`
	// FingerprintKey keys the hash attached to anonymized matches so repeats
	// can be correlated without logging the raw value
	FingerprintKey string `toml:"fingerprint_key"`
	// Actions overrides the action per violation category, e.g.
	// {topic_policy = "BLOCK"}. Unset categories keep their defaults.
	Actions map[string]string `toml:"actions"`
}

// KnowledgeBaseConfig contains retrieval augmentation settings
type KnowledgeBaseConfig struct {
	KnowledgeBaseID string `toml:"knowledge_base_id"`
	NumberOfResults int    `toml:"number_of_results"`
}

// ExtractionConfig contains extraction and scoring settings
type ExtractionConfig struct {
	UncertaintyThreshold float64 `toml:"uncertainty_threshold"`
}

// EmbeddingConfig contains embedding client and cache settings
type EmbeddingConfig struct {
	ModelID   string `toml:"model_id"`
	CacheSize int    `toml:"cache_size"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level        string `toml:"level"`
	Format       string `toml:"format"`
	LogRequests  bool   `toml:"log_requests"`
	LogResponses bool   `toml:"log_responses"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Default returns the development configuration
func Default() *Config {
	return &Config{
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Model: ModelConfig{
			ModelID:          "anthropic.claude-3-5-sonnet-20241022-v2:0",
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        4096,
			Temperature:      0.1,
			TopP:             0.9,
			TopK:             250,
			StopSequences:    []string{"```", "\n\n\n"},
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
			MaxDelay:   30 * time.Second,
			Jitter:     true,
		},
		Timeouts: TimeoutConfig{
			Connect: 10 * time.Second,
			Request: 60 * time.Second,
		},
		Guardrails: GuardrailsConfig{
			GuardrailVersion:   "DRAFT",
			MinInputLength:     3,
			MaxInputLength:     10000,
			MaxOutputItems:     100,
			LowConfidenceFloor: 0.5,
		},
		KnowledgeBase: KnowledgeBaseConfig{
			NumberOfResults: 5,
		},
		Extraction: ExtractionConfig{
			UncertaintyThreshold: 0.7,
		},
		Embedding: EmbeddingConfig{
			ModelID:   "amazon.titan-embed-text-v1",
			CacheSize: 512,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "json",
			LogRequests:  true,
			LogResponses: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: "cartparse",
		},
	}
}

// Production returns the production configuration: more retries, longer
// ceilings, response logging off.
func Production() *Config {
	cfg := Default()
	cfg.Retry.MaxRetries = 5
	cfg.Retry.MaxDelay = 60 * time.Second
	cfg.Timeouts.Request = 120 * time.Second
	cfg.Logging.LogResponses = false
	return cfg
}

// Load loads configuration from a file. A missing file is not an
// error; defaults with environment overrides apply.
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Parse TOML
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Substitute environment variables
	cfg.substituteEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads config from file or returns defaults
func LoadOrDefault(path string) *Config {
	if path == "" {
		cfg := Default()
		cfg.substituteEnvVars()
		return cfg
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: Failed to load config from %s: %v\n", path, err)
		return Default()
	}

	return cfg
}

// substituteEnvVars substitutes ${VAR} patterns with environment variables
// and applies direct environment variable overrides
func (c *Config) substituteEnvVars() {
	// Expand ${VAR} patterns in config values
	c.AWS.AccessKeyID = expandEnv(c.AWS.AccessKeyID)
	c.AWS.SecretAccessKey = expandEnv(c.AWS.SecretAccessKey)
	c.Guardrails.GuardrailID = expandEnv(c.Guardrails.GuardrailID)
	c.Guardrails.FingerprintKey = expandEnv(c.Guardrails.FingerprintKey)
	c.KnowledgeBase.KnowledgeBaseID = expandEnv(c.KnowledgeBase.KnowledgeBaseID)

	// Direct environment variable overrides
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		c.Model.ModelID = v
	}
	if v := os.Getenv("BEDROCK_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Model.MaxTokens = n
		}
	}
	if v := os.Getenv("BEDROCK_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Model.Temperature = f
		}
	}
	if v := os.Getenv("BEDROCK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("BEDROCK_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Timeouts.Request = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("GUARDRAIL_ID"); v != "" {
		c.Guardrails.GuardrailID = v
	}
	if v := os.Getenv("GUARDRAIL_VERSION"); v != "" {
		c.Guardrails.GuardrailVersion = v
	}
	if v := os.Getenv("KNOWLEDGE_BASE_ID"); v != "" {
		c.KnowledgeBase.KnowledgeBaseID = v
	}
	if v := os.Getenv("UNCERTAINTY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Extraction.UncertaintyThreshold = f
		}
	}
}

// expandEnv expands ${VAR} or $VAR patterns
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Model.ModelID == "" {
		return fmt.Errorf("model.model_id must not be empty")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("model.max_tokens must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be in [0,1], got %v", c.Model.Temperature)
	}
	if c.Model.TopP < 0 || c.Model.TopP > 1 {
		return fmt.Errorf("model.top_p must be in [0,1], got %v", c.Model.TopP)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %v", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay %v is below retry.base_delay %v", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Guardrails.MinInputLength < 1 {
		return fmt.Errorf("guardrails.min_input_length must be at least 1, got %d", c.Guardrails.MinInputLength)
	}
	if c.Guardrails.MaxInputLength <= c.Guardrails.MinInputLength {
		return fmt.Errorf("guardrails.max_input_length must exceed min_input_length")
	}
	if c.Extraction.UncertaintyThreshold < 0 || c.Extraction.UncertaintyThreshold > 1 {
		return fmt.Errorf("extraction.uncertainty_threshold must be in [0,1], got %v", c.Extraction.UncertaintyThreshold)
	}
	if c.KnowledgeBase.NumberOfResults < 1 {
		return fmt.Errorf("knowledge_base.number_of_results must be at least 1, got %d", c.KnowledgeBase.NumberOfResults)
	}
	return nil
}
