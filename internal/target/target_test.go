package target

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotpatch/internal/config"
)

const program = `
greeting = "hello"
counter = 0

def main():
    log("main called")
    return dispatch("echo", greeting, 2)

def add(a, b):
    return a + b
`

func echoDispatch(name string, args ...any) (any, error) {
	if name != "echo" {
		return nil, nil
	}
	return args, nil
}

func TestStarlarkMaterialize(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	tgt := NewStarlark(echoDispatch, logger)

	env, err := tgt.Materialize(context.Background(), program)
	require.NoError(t, err)
	assert.Equal(t, KindStarlark, env.Target())
	assert.Equal(t, program, env.Source())

	senv := env.(*StarlarkEnv)
	assert.Equal(t, []string{"add", "counter", "greeting", "main"}, senv.Globals())
	assert.True(t, senv.HasFunc("main"))
	assert.False(t, senv.HasFunc("greeting"))

	got, err := senv.Call(context.Background(), "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = senv.Call(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, []any{"hello", int64(2)}, got)
	assert.Contains(t, buf.String(), "main called")
}

func TestStarlarkGlobalsAreFrozen(t *testing.T) {
	env, err := NewStarlark(nil, nil).Materialize(context.Background(), "items = []\ndef push(x):\n    items.append(x)\n")
	require.NoError(t, err)

	_, err = env.(*StarlarkEnv).Call(context.Background(), "push", 1)
	assert.ErrorContains(t, err, "frozen")
}

func TestStarlarkSyntaxErrorFails(t *testing.T) {
	_, err := NewStarlark(nil, nil).Materialize(context.Background(), "def broken(:\n")
	assert.Error(t, err)
}

func TestStarlarkRuntimeErrorFails(t *testing.T) {
	_, err := NewStarlark(nil, nil).Materialize(context.Background(), "x = 1 // 0\n")
	assert.ErrorContains(t, err, "division by zero")
}

func TestStarlarkDispatchUnknownReturnsNone(t *testing.T) {
	env, err := NewStarlark(echoDispatch, nil).Materialize(context.Background(), "result = dispatch(\"nonexistent\")\n")
	require.NoError(t, err)
	v, ok := env.(*StarlarkEnv).Global("result")
	require.True(t, ok)
	assert.Equal(t, "None", v.String())
}

func TestStarlarkDispatchError(t *testing.T) {
	failing := func(string, ...any) (any, error) { return nil, errors.New("boom") }
	_, err := NewStarlark(failing, nil).Materialize(context.Background(), "dispatch(\"x\")\n")
	assert.ErrorContains(t, err, "boom")
}

func TestStarlarkCancelledByContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewStarlark(nil, nil).Materialize(ctx, "while True:\n    pass\n")
	assert.Error(t, err)
}

func TestCallErrors(t *testing.T) {
	env, err := NewStarlark(nil, nil).Materialize(context.Background(), "value = 1\n")
	require.NoError(t, err)
	senv := env.(*StarlarkEnv)

	_, err = senv.Call(context.Background(), "missing")
	assert.ErrorContains(t, err, "no global")
	_, err = senv.Call(context.Background(), "value")
	assert.ErrorContains(t, err, "not callable")
}

func TestEntrypointRunner(t *testing.T) {
	env, err := NewStarlark(nil, nil).Materialize(context.Background(), "def main():\n    fail(\"entry ran\")\n")
	require.NoError(t, err)

	assert.ErrorContains(t, EntrypointRunner("main")(context.Background(), env), "entry ran")
	assert.NoError(t, EntrypointRunner("absent")(context.Background(), env))

	htmlEnv, err := NewHTML().Materialize(context.Background(), "<p>x</p>")
	require.NoError(t, err)
	assert.NoError(t, EntrypointRunner("main")(context.Background(), htmlEnv))
}

func TestFileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "app.js")
	tgt, err := NewFile(path)
	require.NoError(t, err)

	env, err := tgt.Materialize(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, path, env.(*FileEnv).Path())

	_, err = tgt.Materialize(context.Background(), "second")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = NewFile("")
	assert.Error(t, err)
}

func TestHTMLTarget(t *testing.T) {
	env, err := NewHTML().Materialize(context.Background(),
		`<html><head><title> Patched </title></head><body><div id="hud">on</div></body></html>`)
	require.NoError(t, err)
	henv := env.(*HTMLEnv)
	assert.Equal(t, "Patched", henv.Title())
	require.NotNil(t, henv.ElementByID("hud"))
	assert.Nil(t, henv.ElementByID("missing"))
	assert.NotNil(t, henv.Document())
}

func TestNew(t *testing.T) {
	tgt, err := New(config.TargetConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, KindStarlark, tgt.Kind())

	tgt, err = New(config.TargetConfig{Kind: KindHTML}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, KindHTML, tgt.Kind())

	tgt, err = New(config.TargetConfig{Kind: KindFile, Path: filepath.Join(t.TempDir(), "a")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, KindFile, tgt.Kind())

	_, err = New(config.TargetConfig{Kind: "wasm"}, nil, nil)
	assert.Error(t, err)
}

func TestConvertRoundTrip(t *testing.T) {
	v, err := toStarlark(map[string]any{"a": []string{"x"}, "b": 1.5, "c": nil})
	require.NoError(t, err)
	back, err := fromStarlark(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{"x"}, "b": 1.5, "c": nil}, back)

	_, err = toStarlark(struct{}{})
	assert.Error(t, err)
}
