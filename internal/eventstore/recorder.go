package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/hotpatch/internal/logfields"
)

// Recorder fans run events out to every configured Appender. Recording is
// best effort: a failing appender is logged at debug level and never
// affects the run.
type Recorder struct {
	appenders []Appender
	logger    *slog.Logger
}

// NewRecorder returns a Recorder writing to appenders. Nil appenders are skipped.
func NewRecorder(logger *slog.Logger, appenders ...Appender) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{logger: logger}
	for _, a := range appenders {
		if a != nil {
			r.appenders = append(r.appenders, a)
		}
	}
	return r
}

// Len returns the number of appenders.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.appenders)
}

// Record encodes payload (one of the payload types in this package) and
// appends it for runID. A nil Recorder is a no-op.
func (r *Recorder) Record(ctx context.Context, runID string, payload any) {
	if r == nil || len(r.appenders) == 0 {
		return
	}
	eventType := TypeOf(payload)
	if eventType == "" {
		r.logger.DebugContext(ctx, "Ignoring unknown event payload", slog.String("type", typeName(payload)))
		return
	}
	event, err := New(runID, eventType, payload)
	if err != nil {
		r.logger.DebugContext(ctx, "Event encoding failed", slog.String("event", eventType), logfields.Error(err))
		return
	}
	for _, a := range r.appenders {
		if err := a.Append(ctx, runID, eventType, event.Payload(), event.Metadata()); err != nil {
			r.logger.DebugContext(ctx, "Event append failed",
				slog.String("event", eventType),
				slog.String("appender", typeName(a)),
				logfields.Error(err))
		}
	}
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
