package config

import (
	"fmt"
	"time"
)

// parseDuration accepts Go duration strings; "0" and "" yield zero.
func parseDuration(raw string) (time.Duration, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

// TimeoutDuration is the per-request fetch timeout. Zero means no timeout.
func (s SourceConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(s.Timeout)
	return d
}

// InitialDelayDuration returns the first retry delay (zero if unset).
func (r RetryConfig) InitialDelayDuration() time.Duration {
	d, _ := parseDuration(r.InitialDelay)
	return d
}

// MaxDelayDuration returns the retry delay cap (zero if unset).
func (r RetryConfig) MaxDelayDuration() time.Duration {
	d, _ := parseDuration(r.MaxDelay)
	return d
}

// IntervalDuration is the period between daemon runs.
func (d DaemonConfig) IntervalDuration() time.Duration {
	v, _ := parseDuration(d.Interval)
	return v
}

// DebounceDuration is the quiet period before a config change triggers a run.
func (d DaemonConfig) DebounceDuration() time.Duration {
	v, _ := parseDuration(d.Debounce)
	return v
}
