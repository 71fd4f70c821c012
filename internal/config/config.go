// Package config loads the vitalwatch YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvURL      = "VITALWATCH_URL"
	EnvUsername = "VITALWATCH_USERNAME"
	EnvPassword = "VITALWATCH_PASSWORD"
	EnvLogLevel = "VITALWATCH_LOG_LEVEL"
)

// DefaultPollInterval is the sync cadence used when none is configured.
const DefaultPollInterval = 30 * time.Second

type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
	Mock   MockConfig   `yaml:"mock"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AuthConfig holds optional credentials used for an automatic login at
// startup. Leave both empty to be prompted by the login form.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SyncConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Hints            bool          `yaml:"hints"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Console    bool   `yaml:"console"`
}

// MockConfig configures the in-memory development backend.
type MockConfig struct {
	Host               string              `yaml:"host"`
	Port               int                 `yaml:"port"`
	AlertInterval      time.Duration       `yaml:"alert_interval"`
	CPUDegradedPercent float64             `yaml:"cpu_degraded_percent"`
	Seed               bool                `yaml:"seed"`
	Users              map[string]MockUser `yaml:"users"`
}

type MockUser struct {
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Sync: SyncConfig{
			PollInterval:     DefaultPollInterval,
			RequestTimeout:   10 * time.Second,
			FailureThreshold: 3,
			Hints:            true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			File:       "./logs/vitalwatch.log",
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Mock: MockConfig{
			Host:               "127.0.0.1",
			Port:               8000,
			AlertInterval:      20 * time.Second,
			CPUDegradedPercent: 85,
			Seed:               true,
			Users: map[string]MockUser{
				"nurse": {Password: "nurse", Role: "nurse"},
				"admin": {Password: "admin", Role: "admin"},
			},
		},
	}
}

// Default returns a config populated with defaults only.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// ApplyEnv loads a .env file from the working directory when present and
// overlays the VITALWATCH_* variables onto cfg.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v, ok := os.LookupEnv(EnvURL); ok && v != "" {
		c.Server.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvUsername); ok {
		c.Auth.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok {
		c.Auth.Password = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return errors.New("server.base_url is required")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive, got %s", c.Sync.PollInterval)
	}
	if c.Sync.RequestTimeout <= 0 {
		return fmt.Errorf("sync.request_timeout must be positive, got %s", c.Sync.RequestTimeout)
	}
	if c.Sync.FailureThreshold < 1 {
		return fmt.Errorf("sync.failure_threshold must be at least 1, got %d", c.Sync.FailureThreshold)
	}
	return nil
}

// HasCredentials reports whether an automatic login can be attempted.
func (c *Config) HasCredentials() bool {
	return c.Auth.Username != "" && c.Auth.Password != ""
}
