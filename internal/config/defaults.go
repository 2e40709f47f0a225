package config

import "path/filepath"

// Defaults that are not expressed in the example written by Init.
const (
	DefaultStateDir       = ".hotpatch"
	DefaultSourceTimeout  = "30s"
	DefaultMaxBytes       = 10 * 1024 * 1024
	DefaultNATSBucket     = "hotpatch"
	DefaultMetricsListen  = ":9464"
	DefaultMetricsPath    = "/metrics"
	DefaultDaemonInterval = "15m"
	DefaultDaemonDebounce = "2s"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// SourceDefaultApplier handles source defaults.
type SourceDefaultApplier struct{}

func (SourceDefaultApplier) Domain() string { return "source" }

func (SourceDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Source.Timeout == "" {
		cfg.Source.Timeout = DefaultSourceTimeout
	}
	if cfg.Source.MaxBytes <= 0 {
		cfg.Source.MaxBytes = DefaultMaxBytes
	}
	if cfg.Source.Retry.MaxRetries < 0 {
		cfg.Source.Retry.MaxRetries = 0
	}
	return nil
}

// CacheDefaultApplier handles cache defaults. The path default depends on the backend.
type CacheDefaultApplier struct{}

func (CacheDefaultApplier) Domain() string { return "cache" }

func (CacheDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if cfg.Cache.Path == "" {
		switch cfg.Cache.Backend {
		case "sqlite":
			cfg.Cache.Path = filepath.Join(DefaultStateDir, "cache.db")
		case "file":
			cfg.Cache.Path = filepath.Join(DefaultStateDir, "cache.json")
		}
	}
	return nil
}

// TargetDefaultApplier handles target defaults.
type TargetDefaultApplier struct{}

func (TargetDefaultApplier) Domain() string { return "target" }

func (TargetDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Target.Kind == "" {
		cfg.Target.Kind = "starlark"
	}
	return nil
}

// ObservabilityDefaultApplier handles logging, metrics and events defaults.
type ObservabilityDefaultApplier struct{}

func (ObservabilityDefaultApplier) Domain() string { return "observability" }

func (ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Events.Path == "" {
		cfg.Events.Path = filepath.Join(DefaultStateDir, "events.db")
	}
	return nil
}

// BrokerDefaultApplier handles NATS and daemon defaults.
type BrokerDefaultApplier struct{}

func (BrokerDefaultApplier) Domain() string { return "broker" }

func (BrokerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.NATS.Bucket == "" {
		cfg.NATS.Bucket = DefaultNATSBucket
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = "hotpatch"
	}
	if cfg.Daemon.Interval == "" {
		cfg.Daemon.Interval = DefaultDaemonInterval
	}
	if cfg.Daemon.Debounce == "" {
		cfg.Daemon.Debounce = DefaultDaemonDebounce
	}
	return nil
}

// DefaultApplierChain runs every domain applier in order.
type DefaultApplierChain struct {
	appliers []DefaultApplier
}

// NewDefaultApplier returns the chain used by Load.
func NewDefaultApplier() *DefaultApplierChain {
	return &DefaultApplierChain{appliers: []DefaultApplier{
		SourceDefaultApplier{},
		CacheDefaultApplier{},
		TargetDefaultApplier{},
		ObservabilityDefaultApplier{},
		BrokerDefaultApplier{},
	}}
}

func (c *DefaultApplierChain) ApplyDefaults(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	for _, a := range c.appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) error {
	return NewDefaultApplier().ApplyDefaults(cfg)
}
