package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, span := StartStage(WithRunID(context.Background(), "r1"), logger, "fetch")
	assert.Equal(t, "fetch", GetContext(ctx).Stage)

	got, ok := SpanFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, span, got)

	span.SetAttr(slog.Int("bytes", 42))
	span.End(nil)
	span.End(errors.New("ignored"))

	out := buf.String()
	assert.Contains(t, out, "Stage started")
	assert.Contains(t, out, "Stage finished")
	assert.Contains(t, out, "bytes=42")
	assert.Contains(t, out, "stage=fetch")
	assert.NotContains(t, out, "ignored")
}

func TestSpanEndWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, span := StartStage(context.Background(), logger, "revalidate")
	span.End(errors.New("offline"))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Stage failed"))
	assert.Contains(t, out, "error=offline")
}

func TestSpanFromContextMissing(t *testing.T) {
	_, ok := SpanFromContext(context.Background())
	assert.False(t, ok)
}
