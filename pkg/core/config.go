package core

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// ProductionURL is the Gemini REST API base URL.
	ProductionURL = "https://api.gemini.com"
	// SandboxURL is the Gemini sandbox REST API base URL.
	SandboxURL = "https://api.sandbox.gemini.com"

	// EnvAPIKey and EnvAPISecret override the configured credentials.
	EnvAPIKey    = "GEMINI_API_KEY"
	EnvAPISecret = "GEMINI_API_SECRET"
)

// Credentials holds API authentication credentials.
type Credentials struct {
	// APIKey is the public API key identifier, sent with every privileged request.
	APIKey string `json:"api_key" yaml:"api_key" validate:"required"`
	// SecretKey is only used to sign requests and is never transmitted.
	SecretKey string `json:"secret_key" yaml:"secret_key" validate:"required"`
}

// String masks both values so credentials can be logged safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey:%s, SecretKey:%s}", maskKey(c.APIKey), maskKey(c.SecretKey))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Config contains all configuration options for a Gemini client.
type Config struct {
	Exchange    string       `json:"exchange" yaml:"exchange" validate:"required"`
	BaseURL     string       `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Sandbox     bool         `json:"sandbox" yaml:"sandbox"`
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// Timeout bounds every single HTTP attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"min=1ms"`
	// RetryBudget is the number of attempts made while the venue answers 429.
	RetryBudget int `json:"retry_budget" yaml:"retry_budget" validate:"min=1"`

	// RateLimitRequests paces private requests client-side; zero disables pacing.
	RateLimitRequests int           `json:"rate_limit_requests" yaml:"rate_limit_requests" validate:"min=0"`
	RateLimitPeriod   time.Duration `json:"rate_limit_period" yaml:"rate_limit_period" validate:"min=1ms"`
	// PublicRateLimitRequests paces unauthenticated requests within the same period.
	PublicRateLimitRequests int `json:"public_rate_limit_requests" yaml:"public_rate_limit_requests" validate:"min=0"`

	// BalanceCacheTTL is how long a balance snapshot is served from memory.
	BalanceCacheTTL time.Duration `json:"balance_cache_ttl" yaml:"balance_cache_ttl" validate:"min=0"`

	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with the venue defaults:
// 5s timeout, 5 attempts under rate limiting, 600 private / 120 public
// requests per minute and a 10 minute balance cache.
func DefaultConfig() *Config {
	return &Config{
		Exchange:    string(LocationGemini),
		Timeout:     5 * time.Second,
		RetryBudget: 5,

		RateLimitRequests:       600,
		RateLimitPeriod:         time.Minute,
		PublicRateLimitRequests: 120,

		BalanceCacheTTL: 10 * time.Minute,

		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks the config. Credentials, when present, are validated as a nested struct.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// ResolvedBaseURL returns BaseURL if set, otherwise the production or sandbox URL.
func (c *Config) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithSandbox enables or disables sandbox mode and returns the config for chaining.
func (c *Config) WithSandbox(sandbox bool) *Config {
	c.Sandbox = sandbox
	return c
}

// WithBaseURL overrides the API base URL and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetryBudget sets the number of attempts under rate limiting.
func (c *Config) WithRetryBudget(budget int) *Config {
	c.RetryBudget = budget
	return c
}

// WithRateLimit sets the private request pacing and returns the config for chaining.
// A zero request count disables pacing.
func (c *Config) WithRateLimit(requests int, period time.Duration) *Config {
	c.RateLimitRequests = requests
	c.RateLimitPeriod = period
	return c
}

// WithBalanceCacheTTL sets how long balance snapshots are cached.
func (c *Config) WithBalanceCacheTTL(ttl time.Duration) *Config {
	c.BalanceCacheTTL = ttl
	return c
}

// LoadConfig reads a YAML config file on top of DefaultConfig and applies
// credential overrides from the environment.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides credentials with GEMINI_API_KEY and GEMINI_API_SECRET when set.
func (c *Config) ApplyEnv() {
	key, secret := os.Getenv(EnvAPIKey), os.Getenv(EnvAPISecret)
	if key == "" && secret == "" {
		return
	}
	if c.Credentials == nil {
		c.Credentials = &Credentials{}
	}
	if key != "" {
		c.Credentials.APIKey = key
	}
	if secret != "" {
		c.Credentials.SecretKey = secret
	}
}
