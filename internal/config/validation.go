package config

import (
	"fmt"
	"net/url"
	"regexp"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

// validate runs the domain validators in dependency order and stops at the first failure.
func (cv *configurationValidator) validate() error {
	for _, step := range []func() error{
		cv.validateSource,
		cv.validateCache,
		cv.validateTarget,
		cv.validateRewrites,
		cv.validateSettings,
		cv.validateEvents,
		cv.validateDaemon,
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateSource() error {
	src := cv.config.Source
	if src.URL == "" {
		return derrors.ValidationFailed("source.url", "required")
	}
	u, err := url.Parse(src.URL)
	if err != nil {
		return derrors.ValidationFailed("source.url", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return derrors.ValidationFailed("source.url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return derrors.ValidationFailed("source.url", "missing host")
	}
	if _, err := parseDuration(src.Timeout); err != nil {
		return derrors.ValidationFailed("source.timeout", err.Error())
	}
	if b := src.Retry.Backoff; b != "" {
		if _, ok := NormalizeRetryBackoff(string(b)); !ok {
			return derrors.ValidationFailed("source.retry.backoff", fmt.Sprintf("unsupported mode %q", b))
		}
	}
	if _, err := parseDuration(src.Retry.InitialDelay); err != nil {
		return derrors.ValidationFailed("source.retry.initial_delay", err.Error())
	}
	if _, err := parseDuration(src.Retry.MaxDelay); err != nil {
		return derrors.ValidationFailed("source.retry.max_delay", err.Error())
	}
	return nil
}

func (cv *configurationValidator) validateCache() error {
	c := cv.config.Cache
	switch c.Backend {
	case "sqlite", "file":
		if c.Path == "" {
			return derrors.ValidationFailed("cache.path", "required for "+c.Backend+" backend")
		}
	case "nats":
		if cv.config.NATS.URL == "" {
			return derrors.ValidationFailed("nats.url", "required for nats cache backend")
		}
	case "memory":
	default:
		return derrors.ValidationFailed("cache.backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.ContentKey != "" && c.ContentKey == c.FingerprintKey {
		return derrors.ValidationFailed("cache.fingerprint_key", "must differ from cache.content_key")
	}
	return nil
}

func (cv *configurationValidator) validateTarget() error {
	t := cv.config.Target
	switch t.Kind {
	case "starlark", "html":
	case "file":
		if t.Path == "" {
			return derrors.ValidationFailed("target.path", "required for file target")
		}
	default:
		return derrors.ValidationFailed("target.kind", fmt.Sprintf("unknown target %q", t.Kind))
	}
	if t.Entrypoint != "" && t.Kind != "starlark" {
		return derrors.ValidationFailed("target.entrypoint", "only supported by the starlark target")
	}
	return nil
}

func (cv *configurationValidator) validateRewrites() error {
	seen := make(map[string]bool)
	for i, r := range cv.config.Rewrites {
		field := fmt.Sprintf("rewrites[%d]", i)
		if r.Name == "" {
			return derrors.ValidationFailed(field+".name", "required")
		}
		if seen[r.Name] {
			return derrors.ValidationFailed(field+".name", "duplicate rewrite name "+r.Name)
		}
		seen[r.Name] = true
		if r.Pattern == "" {
			return derrors.ValidationFailed(field+".pattern", "required")
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return derrors.ValidationFailed(field+".pattern", err.Error())
		}
	}
	return nil
}

// validateSettings checks the declared schema and values. Rule gates that
// name an undeclared setting are rejected here so a typo does not silently
// disable a rule.
func (cv *configurationValidator) validateSettings() error {
	values, err := cv.config.SettingsValues()
	if err != nil {
		return derrors.ValidationFailed("settings", err.Error())
	}
	for i, r := range cv.config.Rewrites {
		if r.EnabledBy == "" {
			continue
		}
		f, ok := values.Schema().Lookup(r.EnabledBy)
		if !ok {
			return derrors.ValidationFailed(fmt.Sprintf("rewrites[%d].enabled_by", i), "undeclared setting "+r.EnabledBy)
		}
		if f.Type != settings.TypeBool {
			return derrors.ValidationFailed(fmt.Sprintf("rewrites[%d].enabled_by", i), "setting "+r.EnabledBy+" is not a bool")
		}
	}
	return nil
}

func (cv *configurationValidator) validateEvents() error {
	if cv.config.Events.RetainRuns < 0 {
		return derrors.ValidationFailed("events.retain_runs", "cannot be negative")
	}
	if cv.config.Events.Subject != "" && cv.config.NATS.URL == "" {
		return derrors.ValidationFailed("nats.url", "required when events.subject is set")
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	interval, err := parseDuration(d.Interval)
	if err != nil {
		return derrors.ValidationFailed("daemon.interval", err.Error())
	}
	if interval == 0 {
		return derrors.ValidationFailed("daemon.interval", "must be greater than zero")
	}
	if _, err := parseDuration(d.Debounce); err != nil {
		return derrors.ValidationFailed("daemon.debounce", err.Error())
	}
	return nil
}
