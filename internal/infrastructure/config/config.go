package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	RPC       RPCConfig
	Sandbox   SandboxConfig
	Fetch     FetchConfig
	Store     StoreConfig
	Releases  ReleaseConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-client rate limiting for the RPC endpoint.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// RPCConfig holds dispatcher policy.
type RPCConfig struct {
	RedactStacks bool `envconfig:"RPC_REDACT_STACKS" default:"false"`
}

// SandboxConfig bounds every sandboxed function invocation.
type SandboxConfig struct {
	Timeout           time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	MaxMemoryMB       int           `envconfig:"SANDBOX_MAX_MEMORY_MB" default:"0"`
	PoolSize          int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	MaxCallStackSize  int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	MaxConsoleEntries int           `envconfig:"SANDBOX_MAX_CONSOLE_ENTRIES" default:"1000"`
}

// FetchConfig controls outbound requests made by sandboxed code.
type FetchConfig struct {
	Timeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	MaxRetries   int           `envconfig:"FETCH_MAX_RETRIES" default:"3"`
	MaxBodyMB    int           `envconfig:"FETCH_MAX_BODY_MB" default:"10"`
	AllowedHosts []string      `envconfig:"FETCH_ALLOWED_HOSTS"`
	RateLimit    float64       `envconfig:"FETCH_RATE_LIMIT" default:"0"`
}

// StoreConfig holds the in-memory app store settings.
type StoreConfig struct {
	SeedDir string `envconfig:"SEED_DIR"`
}

// ReleaseConfig holds the latest-release lookup settings.
type ReleaseConfig struct {
	URL      string        `envconfig:"RELEASES_URL" default:"https://api.github.com/repos/mui/mui-toolpad/releases/latest"`
	CacheTTL time.Duration `envconfig:"RELEASES_CACHE_TTL" default:"1h"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every value that parses but cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if n, err := strconv.Atoi(c.Server.Port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %q is not a port number", c.Server.Port))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, errors.New("SANDBOX_TIMEOUT: must be positive"))
	}
	if c.Sandbox.PoolSize < 1 {
		errs = append(errs, errors.New("SANDBOX_POOL_SIZE: must be at least 1"))
	}
	if c.Sandbox.MaxMemoryMB < 0 {
		errs = append(errs, errors.New("SANDBOX_MAX_MEMORY_MB: must not be negative"))
	}
	if c.Fetch.MaxBodyMB < 1 {
		errs = append(errs, errors.New("FETCH_MAX_BODY_MB: must be at least 1"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS: must be at least 1 when rate limiting is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			Timeout:           5 * time.Second,
			MaxMemoryMB:       0,
			PoolSize:          4,
			MaxCallStackSize:  1024,
			MaxConsoleEntries: 1000,
		},
		Fetch: FetchConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			MaxBodyMB:  10,
		},
		Releases: ReleaseConfig{
			URL:      "https://api.github.com/repos/mui/mui-toolpad/releases/latest",
			CacheTTL: time.Hour,
		},
	}
}

// Address returns the host:port the HTTP server listens on.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}
