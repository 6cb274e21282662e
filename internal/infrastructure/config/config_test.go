package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Address())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.RPC.RedactStacks)

	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Zero(t, cfg.Sandbox.MaxMemoryMB, "heap guard is off unless configured")
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)

	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Empty(t, cfg.Fetch.AllowedHosts)
	assert.Equal(t, time.Hour, cfg.Releases.CacheTTL)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Sandbox, cfg.Sandbox)
	assert.Equal(t, def.Releases, cfg.Releases)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                  "9000",
		"HOST":                  "127.0.0.1",
		"LOG_LEVEL":             "debug",
		"LOG_DEV":               "true",
		"RPC_REDACT_STACKS":     "true",
		"SANDBOX_TIMEOUT":       "250ms",
		"SANDBOX_MAX_MEMORY_MB": "64",
		"SANDBOX_POOL_SIZE":     "2",
		"FETCH_ALLOWED_HOSTS":   "api.example.com,*.internal.test",
		"FETCH_RATE_LIMIT":      "2.5",
		"SEED_DIR":              "/srv/seeds",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.True(t, cfg.RPC.RedactStacks)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout)
	assert.Equal(t, 64, cfg.Sandbox.MaxMemoryMB)
	assert.Equal(t, 2, cfg.Sandbox.PoolSize)
	assert.Equal(t, []string{"api.example.com", "*.internal.test"}, cfg.Fetch.AllowedHosts)
	assert.Equal(t, 2.5, cfg.Fetch.RateLimit)
	assert.Equal(t, "/srv/seeds", cfg.Store.SeedDir)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("SANDBOX_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"memory limit off", func(c *Config) { c.Sandbox.MaxMemoryMB = 0 }, ""},
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "PORT"},
		{"zero timeout", func(c *Config) { c.Sandbox.Timeout = 0 }, "SANDBOX_TIMEOUT"},
		{"empty pool", func(c *Config) { c.Sandbox.PoolSize = 0 }, "SANDBOX_POOL_SIZE"},
		{"no body", func(c *Config) { c.Fetch.MaxBodyMB = 0 }, "FETCH_MAX_BODY_MB"},
		{"rate limit without rate", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, "RATE_LIMIT_RPS"},
		{"rate limit disabled", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.RequestsPerSecond = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadRejectsUnusableValues(t *testing.T) {
	t.Setenv("SANDBOX_POOL_SIZE", "0")
	t.Setenv("PORT", "99999")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SANDBOX_POOL_SIZE")
	assert.Contains(t, err.Error(), "PORT")
}
