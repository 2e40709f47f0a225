package config

import (
	"slices"
	"strings"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffModes = []RetryBackoffMode{RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential}

// NormalizeRetryBackoff case-folds raw and reports whether the result is a
// known mode.
func NormalizeRetryBackoff(raw string) (RetryBackoffMode, bool) {
	mode := RetryBackoffMode(strings.ToLower(strings.TrimSpace(raw)))
	return mode, slices.Contains(retryBackoffModes, mode)
}
