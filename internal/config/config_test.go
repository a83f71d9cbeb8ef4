package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blueberrycongee/chatrelay/internal/provider"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Dispatch.MaxAttempts != 3 {
		t.Errorf("default max attempts = %d, want 3", cfg.Dispatch.MaxAttempts)
	}
	if cfg.Quota.Store != StoreMemory {
		t.Errorf("default quota store = %s, want memory", cfg.Quota.Store)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "invalid port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Dispatch.MaxAttempts = -1 },
			wantErr: "max_attempts",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Dispatch.Timezone = "Mars/Olympus" },
			wantErr: "dispatch.timezone",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Quota.Store = "etcd" },
			wantErr: "unsupported backend",
		},
		{
			name:    "vault without address",
			mutate:  func(c *Config) { c.Secrets.Vault.Enabled = true },
			wantErr: "secrets.vault.address",
		},
		{
			name:    "blob without bucket",
			mutate:  func(c *Config) { c.Blob.Enabled = true },
			wantErr: "blob.s3.bucket",
		},
		{
			name:    "provider missing id",
			mutate:  func(c *Config) { c.Providers = []ProviderConfig{{Model: "x"}} },
			wantErr: "id is required",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Providers = []ProviderConfig{{ID: "skynet"}} },
			wantErr: "unknown id",
		},
		{
			name:    "duplicate provider",
			mutate:  func(c *Config) { c.Providers = []ProviderConfig{{ID: "qwen"}, {ID: "qwen"}} },
			wantErr: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_QWEN_KEYS", "sk-a,sk-b")

	content := `
server:
  port: 9090
dispatch:
  max_attempts: 5
  timezone: UTC
quota:
  store: redis
  redis:
    addr: redis:6379
providers:
  - id: qwen
    credentials: ${TEST_QWEN_KEYS}
    model: qwen-max
    daily_limit: 50
  - id: openai
    credentials: env://OPENAI_KEYS
    base_url: http://localhost:9999/v1
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	// Unset fields keep their defaults.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Dispatch.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Dispatch.MaxAttempts)
	}
	if cfg.Quota.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.Quota.Redis.Addr)
	}
	if cfg.Quota.Redis.Namespace == "" {
		t.Error("redis namespace default should survive a partial redis block")
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].Credentials != "sk-a,sk-b" {
		t.Errorf("credentials not expanded: %q", cfg.Providers[0].Credentials)
	}
	if cfg.Providers[0].DailyLimit == nil || *cfg.Providers[0].DailyLimit != 50 {
		t.Errorf("daily limit = %v, want 50", cfg.Providers[0].DailyLimit)
	}

	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("server: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse([]byte("providers:\n  - id: nope\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestCredentialSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderConfig{{ID: "qwen", Credentials: "vault://secret/data/llm#qwen"}}

	catalog := provider.DefaultCatalog()
	sources := cfg.CredentialSources(catalog)
	if len(sources) != len(catalog) {
		t.Fatalf("sources = %d, want %d", len(sources), len(catalog))
	}
	for _, s := range sources {
		switch s.Provider {
		case "qwen":
			if s.Ref != "vault://secret/data/llm#qwen" {
				t.Errorf("qwen ref = %q", s.Ref)
			}
		case "openai":
			if s.Ref != "" {
				t.Errorf("openai ref = %q, want empty", s.Ref)
			}
			if len(s.EnvVars) == 0 || s.EnvVars[0] != "OPENAI_API_KEYS" {
				t.Errorf("openai env vars = %v", s.EnvVars)
			}
		}
	}
}

func TestProviderConfigOverride(t *testing.T) {
	limit := 7
	o := ProviderConfig{ID: "zhipu", BaseURL: "http://x", Model: "m", DailyLimit: &limit, MaxTokens: 10}.Override()
	want := provider.Override{BaseURL: "http://x", Model: "m", DailyLimit: &limit, MaxTokens: 10}
	if o.BaseURL != want.BaseURL || o.Model != want.Model || *o.DailyLimit != 7 || o.MaxTokens != 10 {
		t.Errorf("Override() = %+v", o)
	}
}
