// Package errors provides a lightweight structured error type (HotpatchError)
// for category-based classification in the pipeline and the CLI.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a hotpatch error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External system integration errors
	CategoryNetwork ErrorCategory = "network"
	CategoryCache   ErrorCategory = "cache"

	// Extension point errors (isolated, never propagated past their step)
	CategoryInject ErrorCategory = "inject"
	CategoryRun    ErrorCategory = "run"
	CategoryPlugin ErrorCategory = "plugin"

	// Materialization and runtime errors
	CategoryMaterialize ErrorCategory = "materialize"
	CategoryRuntime     ErrorCategory = "runtime"
	CategoryInternal    ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// HotpatchError is a structured error with category, retryability, and context
type HotpatchError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for HotpatchError
type ContextFields map[string]any

// Error implements the error interface
func (e *HotpatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *HotpatchError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *HotpatchError) WithContext(key string, value any) *HotpatchError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new HotpatchError
func New(category ErrorCategory, severity ErrorSeverity, message string) *HotpatchError {
	return &HotpatchError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new HotpatchError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *HotpatchError {
	return &HotpatchError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// Retryable creates a new retryable HotpatchError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *HotpatchError {
	return &HotpatchError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable HotpatchError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *HotpatchError {
	return &HotpatchError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As extracts the outermost HotpatchError from an error chain.
func As(err error) (*HotpatchError, bool) {
	var he *HotpatchError
	if stdErrors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if he, ok := As(err); ok {
		return he.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if he, ok := As(err); ok {
		return he.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a HotpatchError
func GetCategory(err error) ErrorCategory {
	if he, ok := As(err); ok {
		return he.Category
	}
	return CategoryInternal
}
