package config

import "strings"

// normalize case-folds enumerations before defaults are applied.
func normalize(cfg *Config) {
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Target.Kind = strings.ToLower(strings.TrimSpace(cfg.Target.Kind))
	if cfg.Logging.Level != "" {
		cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" {
		cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	}
	if cfg.Source.Retry.Backoff != "" {
		// unknown modes are kept for validateSource to reject
		cfg.Source.Retry.Backoff, _ = NormalizeRetryBackoff(string(cfg.Source.Retry.Backoff))
	}
	for i := range cfg.Settings.Schema {
		cfg.Settings.Schema[i].Type = strings.ToLower(strings.TrimSpace(cfg.Settings.Schema[i].Type))
	}
}
