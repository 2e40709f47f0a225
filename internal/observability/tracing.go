package observability

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/hotpatch/internal/logfields"
)

// Span times one pipeline stage and logs its outcome when ended.
type Span struct {
	ctx    context.Context
	logger *slog.Logger
	name   string
	start  time.Time
	attrs  []slog.Attr
	ended  bool
}

type spanContextKey struct{}

// StartStage marks ctx with stage and returns a span timing it. A nil
// logger falls back to slog.Default().
func StartStage(ctx context.Context, logger *slog.Logger, stage string) (context.Context, *Span) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx = WithStage(ctx, stage)
	span := &Span{ctx: ctx, logger: logger, name: stage, start: time.Now()}
	logger.DebugContext(ctx, "Stage started")
	return context.WithValue(ctx, spanContextKey{}, span), span
}

// SpanFromContext returns the innermost active span.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	span, ok := ctx.Value(spanContextKey{}).(*Span)
	return span, ok
}

// Name returns the stage name.
func (s *Span) Name() string { return s.name }

// SetAttr attaches an attribute reported when the span ends.
func (s *Span) SetAttr(attr slog.Attr) {
	s.attrs = append(s.attrs, attr)
}

// End logs the stage duration; err, when non-nil, is logged at warn.
// Calling End twice is a no-op. It returns the elapsed time.
func (s *Span) End(err error) time.Duration {
	elapsed := time.Since(s.start)
	if s.ended {
		return elapsed
	}
	s.ended = true
	attrs := append([]slog.Attr{logfields.DurationMS(float64(elapsed.Microseconds()) / 1000)}, s.attrs...)
	if err != nil {
		attrs = append(attrs, logfields.Error(err))
		s.logger.LogAttrs(s.ctx, slog.LevelWarn, "Stage failed", attrs...)
		return elapsed
	}
	s.logger.LogAttrs(s.ctx, slog.LevelDebug, "Stage finished", attrs...)
	return elapsed
}
