package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// Process exit codes by category. Unclassified errors exit with 1.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation:  2,
	CategoryConfig:      7,
	CategoryNetwork:     8,
	CategoryCache:       9,
	CategoryInternal:    10,
	CategoryMaterialize: 11,
	CategoryInject:      11,
	CategoryRun:         11,
	CategoryPlugin:      11,
	CategoryRuntime:     12,
}

// CLIErrorAdapter turns command errors into a message on stderr, a log
// record and a process exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		stderr:  os.Stderr,
		exit:    os.Exit,
	}
}

// ExitCodeFor determines the exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if he, ok := As(err); ok {
		if code, known := exitCodes[he.Category]; known {
			return code
		}
	}
	return 1
}

// FormatError renders err for the terminal. Verbose mode prints the full
// cause chain; otherwise the message plus its context keys.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	he, ok := As(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return he.Error()
	}

	msg := he.Message
	if he.Category != CategoryConfig && he.Category != CategoryValidation {
		msg = fmt.Sprintf("%s: %s", he.Category, he.Message)
	}
	if len(he.Context) == 0 {
		return msg
	}
	parts := make([]string, 0, len(he.Context))
	for _, k := range slices.Sorted(maps.Keys(he.Context)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, he.Context[k]))
	}
	return msg + " (" + strings.Join(parts, " ") + ")"
}

// HandleError prints err, logs it when warranted and exits. A nil err is a no-op.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.shouldLog(err) {
		a.logError(err)
	}
	_, _ = fmt.Fprintln(a.stderr, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}
	he, ok := As(err)
	if !ok {
		return true
	}
	return he.Category == CategoryInternal || he.Category == CategoryRuntime || he.Severity == SeverityFatal
}

func (a *CLIErrorAdapter) logError(err error) {
	he, ok := As(err)
	if !ok {
		a.logger.Error("Unclassified error", "error", err)
		return
	}

	attrs := []slog.Attr{slog.String("category", string(he.Category))}
	if he.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	if he.Cause != nil {
		attrs = append(attrs, slog.String("cause", he.Cause.Error()))
	}
	for _, k := range slices.Sorted(maps.Keys(he.Context)) {
		attrs = append(attrs, slog.Any(k, he.Context[k]))
	}
	a.logger.LogAttrs(context.Background(), levelFor(he.Severity), he.Message, attrs...)
}

func levelFor(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
