package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "gemini", config.Exchange)
	assert.False(t, config.Sandbox)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, 5, config.RetryBudget)
	assert.Equal(t, 600, config.RateLimitRequests)
	assert.Equal(t, 120, config.PublicRateLimitRequests)
	assert.Equal(t, time.Minute, config.RateLimitPeriod)
	assert.Equal(t, 10*time.Minute, config.BalanceCacheTTL)
	assert.Equal(t, "info", config.LogLevel)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid_config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing_exchange",
			mutate:  func(c *Config) { c.Exchange = "" },
			wantErr: true,
			errMsg:  "Exchange",
		},
		{
			name:    "invalid_timeout",
			mutate:  func(c *Config) { c.Timeout = -1 * time.Second },
			wantErr: true,
			errMsg:  "Timeout",
		},
		{
			name:    "zero_retry_budget",
			mutate:  func(c *Config) { c.RetryBudget = 0 },
			wantErr: true,
			errMsg:  "RetryBudget",
		},
		{
			name:    "negative_rate_limit",
			mutate:  func(c *Config) { c.RateLimitRequests = -1 },
			wantErr: true,
			errMsg:  "RateLimitRequests",
		},
		{
			name:    "invalid_base_url",
			mutate:  func(c *Config) { c.BaseURL = "not a url" },
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "invalid_log_level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
			errMsg:  "LogLevel",
		},
		{
			name:    "credentials_missing_secret",
			mutate:  func(c *Config) { c.Credentials = &Credentials{APIKey: "key"} },
			wantErr: true,
			errMsg:  "SecretKey",
		},
		{
			name:    "rate_limit_disabled",
			mutate:  func(c *Config) { c.RateLimitRequests = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.errMsg), "expected error to contain %q, got %q", tt.errMsg, err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ResolvedBaseURL(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, ProductionURL, config.ResolvedBaseURL())

	config.WithSandbox(true)
	assert.Equal(t, SandboxURL, config.ResolvedBaseURL())

	config.WithBaseURL("http://127.0.0.1:8080")
	assert.Equal(t, "http://127.0.0.1:8080", config.ResolvedBaseURL())
}

func TestConfig_Chaining(t *testing.T) {
	creds := &Credentials{APIKey: "test-key", SecretKey: "test-secret"}
	config := DefaultConfig().
		WithCredentials(creds).
		WithTimeout(30*time.Second).
		WithRetryBudget(3).
		WithRateLimit(100, 10*time.Second).
		WithBalanceCacheTTL(time.Minute)

	assert.Equal(t, creds, config.Credentials)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 3, config.RetryBudget)
	assert.Equal(t, 100, config.RateLimitRequests)
	assert.Equal(t, 10*time.Second, config.RateLimitPeriod)
	assert.Equal(t, time.Minute, config.BalanceCacheTTL)
}

func TestCredentials_String(t *testing.T) {
	creds := Credentials{APIKey: "account-abcdefgh1234", SecretKey: "short"}

	s := creds.String()
	assert.Contains(t, s, "acco****1234")
	assert.NotContains(t, s, "short")
	assert.NotContains(t, s, "abcdefgh")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gemsync.yaml")
	content := `
sandbox: true
timeout: 2s
retry_budget: 3
balance_cache_ttl: 1m
credentials:
  api_key: file-key
  secret_key: file-secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "env-secret")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, config.Sandbox)
	assert.Equal(t, 2*time.Second, config.Timeout)
	assert.Equal(t, 3, config.RetryBudget)
	assert.Equal(t, time.Minute, config.BalanceCacheTTL)
	assert.Equal(t, "file-key", config.Credentials.APIKey)
	assert.Equal(t, "env-secret", config.Credentials.SecretKey)
	assert.Equal(t, "gemini", config.Exchange)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvAPISecret, "env-secret")

	config, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, config.Credentials)
	assert.Equal(t, "env-key", config.Credentials.APIKey)
}
