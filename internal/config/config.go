// Package config loads, defaults, and validates the buildrelay daemon
// configuration from a YAML file with environment expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	ClientID    string `yaml:"client_id"`
	Environment string `yaml:"environment"`

	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Providers []ProviderConfig `yaml:"providers"`
	Gate      GateConfig       `yaml:"gate"`
	Batching  BatchingConfig   `yaml:"batching"`
	NATS      NATSConfig       `yaml:"nats"`
	Build     BuildConfig      `yaml:"build"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listeners. The admin listener serves health and
// metrics separately from the webhook surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	AdminAddr  string `yaml:"admin_addr"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// StoreConfig locates the SQLite database file.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ProviderConfig binds a provider name to its webhook secret. Secrets are
// normally injected via ${VAR} expansion from the environment.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
}

// GateConfig tunes webhook admission.
type GateConfig struct {
	MaxTimestampSkew      time.Duration `yaml:"max_timestamp_skew"`
	ReceiptTTL            time.Duration `yaml:"receipt_ttl"`
	SecretCacheTTL        time.Duration `yaml:"secret_cache_ttl"`
	AllowUnknownProviders bool          `yaml:"allow_unknown_providers"`
}

// BatchingConfig tunes the build-batching decision thresholds. This section
// supports live reload.
type BatchingConfig struct {
	ImmediateBuildThreshold int           `yaml:"immediate_build_threshold"`
	MaxBatchSize            int           `yaml:"max_batch_size"`
	MaxBatchAge             time.Duration `yaml:"max_batch_age"`
	NormalWindow            time.Duration `yaml:"normal_window"`
	BulkWindow              time.Duration `yaml:"bulk_window"`
	BulkUpdateThreshold     int           `yaml:"bulk_update_threshold"`
	SingleProviderBurst     int           `yaml:"single_provider_burst"`
	BatchTTL                time.Duration `yaml:"batch_ttl"`
}

// NATSConfig configures the content-event feed. Disabled means events are
// still processed but not published externally.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Name          string `yaml:"name"`
}

// BuildConfig points at the downstream build service.
type BuildConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	Token                string        `yaml:"token"`
	Timeout              time.Duration `yaml:"timeout"`
	FullRebuildThreshold int           `yaml:"full_rebuild_threshold"`
	Retry                RetryConfig   `yaml:"retry"`
}

// RetryConfig tunes backoff for transient build-service failures. Leaving
// the whole section empty uses the retry package defaults; within a
// configured section, max_retries 0 disables retries.
type RetryConfig struct {
	Mode       string        `yaml:"mode"` // fixed, linear, exponential
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// MetricsConfig toggles the Prometheus endpoint on the admin listener.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads, expands, defaults, and validates a configuration file. A .env
// file beside the process, when present, is loaded first so ${VAR} expansion
// in the YAML can see it.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

// Parse unmarshals raw YAML with environment expansion, applies defaults, and
// validates. Split from Load so the config watcher can re-parse file contents.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Secrets returns the provider secret map for the gate.
func (c *Config) Secrets() map[string]string {
	out := make(map[string]string, len(c.Providers))
	for _, p := range c.Providers {
		out[p.Name] = p.Secret
	}
	return out
}
