package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/hotpatch/internal/logfields"
)

// ContextKey is used for storing values in context.
type ContextKey string

const (
	// ContextKeyRunID identifies one pipeline run.
	ContextKeyRunID ContextKey = "run_id"
	// ContextKeyStage is the current pipeline stage (fetch, inject, materialize, run, revalidate).
	ContextKeyStage ContextKey = "stage"
	// ContextKeyPlugin is the plugin on whose behalf work happens.
	ContextKeyPlugin ContextKey = "plugin"
	// ContextKeyCacheState is cold or warm.
	ContextKeyCacheState ContextKey = "cache_state"
)

// LogContext holds contextual information for logging.
type LogContext struct {
	RunID      string
	Stage      string
	Plugin     string
	CacheState string
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// WithStage adds the pipeline stage to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithPlugin adds a plugin name to the context.
func WithPlugin(ctx context.Context, plugin string) context.Context {
	return context.WithValue(ctx, ContextKeyPlugin, plugin)
}

// WithCacheState adds the cache state (cold/warm) to the context.
func WithCacheState(ctx context.Context, state string) context.Context {
	return context.WithValue(ctx, ContextKeyCacheState, state)
}

// GetContext extracts logging context from a context.Context.
func GetContext(ctx context.Context) LogContext {
	var lc LogContext
	if ctx == nil {
		return lc
	}
	if v, ok := ctx.Value(ContextKeyRunID).(string); ok {
		lc.RunID = v
	}
	if v, ok := ctx.Value(ContextKeyStage).(string); ok {
		lc.Stage = v
	}
	if v, ok := ctx.Value(ContextKeyPlugin).(string); ok {
		lc.Plugin = v
	}
	if v, ok := ctx.Value(ContextKeyCacheState).(string); ok {
		lc.CacheState = v
	}
	return lc
}

// RunIDFrom returns the run ID stored in ctx, or "".
func RunIDFrom(ctx context.Context) string {
	return GetContext(ctx).RunID
}

// Attrs converts the populated fields to slog attributes.
func (lc LogContext) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	if lc.RunID != "" {
		attrs = append(attrs, logfields.RunID(lc.RunID))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}
	if lc.Plugin != "" {
		attrs = append(attrs, logfields.Plugin(lc.Plugin))
	}
	if lc.CacheState != "" {
		attrs = append(attrs, logfields.CacheState(lc.CacheState))
	}
	return attrs
}

// ContextHandler decorates records with the LogContext found in the
// record's context, so any *slog.Logger call ending in Context picks up
// run_id, stage, plugin and cache_state.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := GetContext(ctx).Attrs(); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

func logAttrs(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	logger := slog.Default()
	if _, decorated := logger.Handler().(*ContextHandler); !decorated {
		attrs = append(GetContext(ctx).Attrs(), attrs...)
	}
	logger.LogAttrs(ctx, level, msg, attrs...)
}

// InfoContext logs an info message through the default logger with context attributes.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context attributes.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context attributes.
func ErrorContext(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, logfields.Error(err))
	}
	logAttrs(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context attributes.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelDebug, msg, attrs)
}

// LogBuilder provides a fluent interface for building log entries.
type LogBuilder struct {
	ctx   context.Context
	attrs []slog.Attr
}

// NewLogBuilder creates a new log builder.
func NewLogBuilder(ctx context.Context) *LogBuilder {
	return &LogBuilder{ctx: ctx}
}

// WithAttr adds an attribute.
func (lb *LogBuilder) WithAttr(key string, value any) *LogBuilder {
	lb.attrs = append(lb.attrs, slog.Any(key, value))
	return lb
}

// WithError adds an error attribute.
func (lb *LogBuilder) WithError(err error) *LogBuilder {
	if err != nil {
		lb.attrs = append(lb.attrs, logfields.Error(err))
	}
	return lb
}

// Info logs at info level.
func (lb *LogBuilder) Info(msg string) { InfoContext(lb.ctx, msg, lb.attrs...) }

// Warn logs at warn level.
func (lb *LogBuilder) Warn(msg string) { WarnContext(lb.ctx, msg, lb.attrs...) }

// Error logs at error level.
func (lb *LogBuilder) Error(msg string) { logAttrs(lb.ctx, slog.LevelError, msg, lb.attrs) }

// Debug logs at debug level.
func (lb *LogBuilder) Debug(msg string) { DebugContext(lb.ctx, msg, lb.attrs...) }
