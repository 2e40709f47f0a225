package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
)

// CurrentVersion is the configuration format version written by Init.
const CurrentVersion = "1"

// Config is the hotpatch configuration file.
type Config struct {
	Version  string         `yaml:"version"`
	Source   SourceConfig   `yaml:"source"`
	Cache    CacheConfig    `yaml:"cache"`
	Target   TargetConfig   `yaml:"target"`
	Rewrites []RewriteRule  `yaml:"rewrites,omitempty"`
	Settings SettingsConfig `yaml:"settings,omitempty"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Events   EventsConfig   `yaml:"events"`
	NATS     NATSConfig     `yaml:"nats,omitempty"`
	Daemon   DaemonConfig   `yaml:"daemon"`
}

// SourceConfig describes the remote artifact.
type SourceConfig struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty"`   // "0" disables the timeout
	MaxBytes int64             `yaml:"max_bytes,omitempty"` // response size cap
	Retry    RetryConfig       `yaml:"retry,omitempty"`     // cold fetch retries only
}

// RetryConfig controls retries of the cold fetch.
type RetryConfig struct {
	MaxRetries   int              `yaml:"max_retries"`
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
}

// CacheConfig selects where the content and fingerprint slots live.
type CacheConfig struct {
	Backend        string `yaml:"backend"` // sqlite|file|nats|memory
	Path           string `yaml:"path,omitempty"`
	ContentKey     string `yaml:"content_key,omitempty"`
	FingerprintKey string `yaml:"fingerprint_key,omitempty"`
}

// TargetConfig selects the materialization target.
type TargetConfig struct {
	Kind       string `yaml:"kind"`                 // starlark|file|html
	Path       string `yaml:"path,omitempty"`       // file target output
	Entrypoint string `yaml:"entrypoint,omitempty"` // starlark function called after materialization
}

// RewriteRule is a declarative regex injector registered by the rewrite plugin.
type RewriteRule struct {
	Name      string `yaml:"name"`
	Pattern   string `yaml:"pattern"`
	Replace   string `yaml:"replace"`
	All       bool   `yaml:"all,omitempty"`
	EnabledBy string `yaml:"enabled_by,omitempty"` // bool setting gating the rule
}

// SettingsConfig declares the settings schema and the configured values.
type SettingsConfig struct {
	Schema []SettingField    `yaml:"schema,omitempty"`
	Values map[string]string `yaml:"values,omitempty"`
}

// SettingField declares one setting.
type SettingField struct {
	Key         string `yaml:"key"`
	Type        string `yaml:"type"`
	Default     string `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level   LogLevel  `yaml:"level"`
	Format  LogFormat `yaml:"format"`
	File    string    `yaml:"file,omitempty"`    // additional JSON sink
	Journal bool      `yaml:"journal,omitempty"` // additional systemd journal sink
}

// MetricsConfig exposes Prometheus metrics from the daemon.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// EventsConfig records run history.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`    // sqlite history database
	Subject string `yaml:"subject,omitempty"` // optional NATS subject events are published to
	// RetainRuns caps the runs kept in the history database; older runs are
	// pruned when an instance opens it. Zero keeps everything.
	RetainRuns int `yaml:"retain_runs,omitempty"`
}

// NATSConfig is the broker connection shared by the nats cache backend and
// event publishing.
type NATSConfig struct {
	URL    string `yaml:"url,omitempty"`
	Name   string `yaml:"name,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
}

// DaemonConfig controls `hotpatch daemon`.
type DaemonConfig struct {
	Interval     string `yaml:"interval,omitempty"`
	Debounce     string `yaml:"debounce,omitempty"`
	DisableWatch bool   `yaml:"disable_watch,omitempty"`
}

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	if loaded, err := LoadEnvFiles(); err == nil && len(loaded) > 0 {
		for _, f := range loaded {
			fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", f)
		}
	}

	if strings.TrimSpace(configPath) == "" {
		return nil, derrors.ConfigRequired("config")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, derrors.ConfigNotFound(configPath)
	}

	// #nosec G304 -- configPath is supplied by the operator
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes after ${VAR} expansion, then applies
// normalization, defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "failed to unmarshal config")
	}

	normalize(&cfg)
	if err := applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Version: CurrentVersion,
		Source: SourceConfig{
			URL:     "https://example.com/app/main.star",
			Timeout: "30s",
			Retry:   RetryConfig{MaxRetries: 0, Backoff: RetryBackoffLinear},
		},
		Cache: CacheConfig{
			Backend: "sqlite",
			Path:    "./.hotpatch/cache.db",
		},
		Target: TargetConfig{
			Kind:       "starlark",
			Entrypoint: "main",
		},
		Rewrites: []RewriteRule{
			{
				Name:      "greeting",
				Pattern:   `greeting = "hello"`,
				Replace:   `greeting = "hello, patched"`,
				EnabledBy: "rewrite.greeting",
			},
		},
		Settings: SettingsConfig{
			Schema: []SettingField{
				{Key: "rewrite.greeting", Type: "bool", Default: "true", Description: "Patch the greeting"},
			},
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Metrics: MetricsConfig{Enabled: false, Listen: ":9464", Path: "/metrics"},
		Events:  EventsConfig{Enabled: true, Path: "./.hotpatch/events.db"},
		Daemon:  DaemonConfig{Interval: "15m", Debounce: "2s"},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
