// Package config loads the service configuration from YAML with environment
// expansion and watches the file for changes.
package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // timezone names must resolve in minimal images

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/chatrelay/internal/blob"
	"github.com/blueberrycongee/chatrelay/internal/credential"
	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/quota"
	"github.com/blueberrycongee/chatrelay/internal/secret/vault"
)

// Quota store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config represents the complete service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	CORS      CORSConfig       `yaml:"cors"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Tracing   TracingConfig    `yaml:"tracing"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Quota     QuotaConfig      `yaml:"quota"`
	Secrets   SecretsConfig    `yaml:"secrets"`
	Blob      BlobConfig       `yaml:"blob"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// CORSConfig controls cross-origin access for browser clients.
type CORSConfig struct {
	Enabled           bool          `yaml:"enabled"`
	AllowAllOrigins   bool          `yaml:"allow_all_origins"`
	AllowCredentials  bool          `yaml:"allow_credentials"`
	AllowMethods      []string      `yaml:"allow_methods"`
	AllowHeaders      []string      `yaml:"allow_headers"`
	ExposeHeaders     []string      `yaml:"expose_headers"`
	MaxAge            time.Duration `yaml:"max_age"`
	DataOrigins       CORSOrigins   `yaml:"data_origins"`
	AdminOrigins      CORSOrigins   `yaml:"admin_origins"`
	AdminPathPrefixes []string      `yaml:"admin_path_prefixes"`
}

// CORSOrigins is an origin policy. The denylist wins; "*" denies all.
type CORSOrigins struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // OTLP/HTTP collector, host:port
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// DispatchConfig controls request dispatch and prompt rendering.
type DispatchConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	HistoryLimit      int           `yaml:"history_limit"`
	AttachmentExcerpt int           `yaml:"attachment_excerpt"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	Timezone          string        `yaml:"timezone"`
	AssistantName     string        `yaml:"assistant_name"`
}

// QuotaConfig selects and configures the quota store.
type QuotaConfig struct {
	Store        string               `yaml:"store"` // memory, redis, postgres
	StoreTimeout time.Duration        `yaml:"store_timeout"`
	Redis        quota.RedisConfig    `yaml:"redis"`
	Postgres     quota.PostgresConfig `yaml:"postgres"`
}

// SecretsConfig configures secret resolution for provider credentials.
type SecretsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Vault    VaultConfig   `yaml:"vault"`
}

// VaultConfig enables the vault:// scheme.
type VaultConfig struct {
	Enabled      bool `yaml:"enabled"`
	vault.Config `yaml:",inline"`
}

// BlobConfig enables resolution of attachments stored by reference.
type BlobConfig struct {
	Enabled bool          `yaml:"enabled"`
	S3      blob.S3Config `yaml:"s3"`
}

// ProviderConfig overrides one catalog entry. Credentials is a secret
// reference (env://, vault://) or a literal comma-separated key list; when
// empty the provider's conventional environment variables are used.
type ProviderConfig struct {
	ID          string `yaml:"id"`
	Credentials string `yaml:"credentials"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	DailyLimit  *int   `yaml:"daily_limit"`
	MaxTokens   int    `yaml:"max_tokens"`
	TokenURL    string `yaml:"token_url"`
}

// Override converts the entry into a registry override.
func (p ProviderConfig) Override() provider.Override {
	return provider.Override{
		BaseURL:    p.BaseURL,
		Model:      p.Model,
		DailyLimit: p.DailyLimit,
		MaxTokens:  p.MaxTokens,
		TokenURL:   p.TokenURL,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 60 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		CORS: CORSConfig{
			AllowMethods:      []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:      []string{"Content-Type", "X-Request-ID"},
			ExposeHeaders:     []string{"X-Request-ID"},
			MaxAge:            10 * time.Minute,
			AdminPathPrefixes: []string{"/v1/config/"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "chatrelay",
			SampleRate:  1.0,
			Insecure:    true,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:       3,
			HistoryLimit:      10,
			AttachmentExcerpt: 1000,
			RequestTimeout:    60 * time.Second,
			Timezone:          "Asia/Shanghai",
		},
		Quota: QuotaConfig{
			Store:        StoreMemory,
			StoreTimeout: 2 * time.Second,
			Redis:        quota.DefaultRedisConfig(),
			Postgres:     quota.DefaultPostgresConfig(),
		},
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
			Vault:    VaultConfig{Config: vault.Config{AuthMethod: "token"}},
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Dispatch.MaxAttempts < 0 {
		return fmt.Errorf("dispatch.max_attempts cannot be negative")
	}
	if c.Dispatch.HistoryLimit < 0 {
		return fmt.Errorf("dispatch.history_limit cannot be negative")
	}
	if c.Dispatch.RequestTimeout < 0 {
		return fmt.Errorf("dispatch.request_timeout cannot be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Quota.Store {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("quota.store: unsupported backend %q", c.Quota.Store)
	}

	if c.Secrets.Vault.Enabled && c.Secrets.Vault.Address == "" {
		return fmt.Errorf("secrets.vault.address is required when vault is enabled")
	}
	if c.Blob.Enabled && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket is required when blob is enabled")
	}

	known := make(map[string]struct{})
	for _, d := range provider.DefaultCatalog() {
		known[d.ID] = struct{}{}
	}
	seen := make(map[string]struct{})
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider[%d]: id is required", i)
		}
		if _, ok := known[p.ID]; !ok {
			return fmt.Errorf("provider[%d]: unknown id %q", i, p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("provider[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.MaxTokens < 0 {
			return fmt.Errorf("provider[%d] %q: max_tokens cannot be negative", i, p.ID)
		}
	}
	return nil
}

// Location returns the timezone that delimits quota days and dates prompts.
func (c *Config) Location() (*time.Location, error) {
	if c.Dispatch.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Dispatch.Timezone)
	if err != nil {
		return nil, fmt.Errorf("dispatch.timezone: %w", err)
	}
	return loc, nil
}

// Overrides returns the registry override of every configured provider.
func (c *Config) Overrides() map[string]provider.Override {
	out := make(map[string]provider.Override, len(c.Providers))
	for _, p := range c.Providers {
		out[p.ID] = p.Override()
	}
	return out
}

// CredentialSources returns one source per catalog entry. Configured
// references take precedence over the conventional environment variables.
func (c *Config) CredentialSources(catalog []provider.Descriptor) []credential.Source {
	refs := make(map[string]string, len(c.Providers))
	for _, p := range c.Providers {
		refs[p.ID] = p.Credentials
	}

	out := make([]credential.Source, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, credential.Source{
			Provider: d.ID,
			Ref:      refs[d.ID],
			EnvVars:  d.CredentialEnv,
		})
	}
	return out
}
