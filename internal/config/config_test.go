package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  base_url: "http://ward-7.local:8000"
sync:
  poll_interval: 15s
  failure_threshold: 5
log:
  level: debug
  format: console
mock:
  users:
    charge:
      password: secret
      role: charge_nurse
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.BaseURL != "http://ward-7.local:8000" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Sync.PollInterval != 15*time.Second {
		t.Errorf("Sync.PollInterval = %s, want 15s", cfg.Sync.PollInterval)
	}
	if cfg.Sync.FailureThreshold != 5 {
		t.Errorf("Sync.FailureThreshold = %d, want 5", cfg.Sync.FailureThreshold)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v, want debug/console", cfg.Log)
	}
	if u, ok := cfg.Mock.Users["charge"]; !ok || u.Role != "charge_nurse" {
		t.Errorf("Mock.Users[charge] = %+v, %v", u, ok)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Sync.RequestTimeout != 10*time.Second {
		t.Errorf("Sync.RequestTimeout = %s, want default 10s", cfg.Sync.RequestTimeout)
	}
	if !cfg.Sync.Hints {
		t.Error("Sync.Hints = false, want default true")
	}
	if cfg.Log.MaxBackups != 3 {
		t.Errorf("Log.MaxBackups = %d, want default 3", cfg.Log.MaxBackups)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Sync.PollInterval != DefaultPollInterval {
		t.Errorf("Sync.PollInterval = %s, want %s", cfg.Sync.PollInterval, DefaultPollInterval)
	}
	if cfg.Server.BaseURL == "" {
		t.Error("Server.BaseURL should have a default")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
	if _, err := LoadOrDefault(cfgPath); err == nil {
		t.Fatal("LoadOrDefault() with invalid YAML should return error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvURL, "http://override:9000")
	t.Setenv(EnvUsername, "nurse")
	t.Setenv(EnvPassword, "pw")
	t.Setenv(EnvLogLevel, "warn")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Server.BaseURL != "http://override:9000" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if !cfg.HasCredentials() {
		t.Error("HasCredentials() = false after env override")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty url", func(c *Config) { c.Server.BaseURL = " " }, true},
		{"zero poll interval", func(c *Config) { c.Sync.PollInterval = 0 }, true},
		{"negative timeout", func(c *Config) { c.Sync.RequestTimeout = -time.Second }, true},
		{"zero threshold", func(c *Config) { c.Sync.FailureThreshold = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
