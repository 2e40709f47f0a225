package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/plugin"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
)

type recordingEnv struct {
	src    string
	closed bool
}

func (r *recordingEnv) Target() string { return "recording" }
func (r *recordingEnv) Source() string { return r.src }
func (r *recordingEnv) Close() error {
	r.closed = true
	return nil
}

type recordingTarget struct {
	built []*recordingEnv
	fail  error
	log   *[]string
}

func (t *recordingTarget) Kind() string { return "recording" }

func (t *recordingTarget) Materialize(_ context.Context, text string) (hooks.Environment, error) {
	if t.log != nil {
		*t.log = append(*t.log, "materialize:"+text)
	}
	if t.fail != nil {
		return nil, t.fail
	}
	env := &recordingEnv{src: text}
	t.built = append(t.built, env)
	return env, nil
}

func suffix(s string) func(context.Context, string) (string, bool, error) {
	return func(_ context.Context, src string) (string, bool, error) {
		return src + s, true, nil
	}
}

func TestMaterializeOrdering(t *testing.T) {
	var log []string
	reg := plugin.NewRegistry()
	reg.OnInject("a", func(ctx context.Context, src string) (string, bool, error) {
		log = append(log, "inject:a")
		return src + "-1", true, nil
	})
	reg.OnInject("b", func(ctx context.Context, src string) (string, bool, error) {
		log = append(log, "inject:b")
		return src + "-2", true, nil
	})
	reg.OnRun("first", func(_ context.Context, env hooks.Environment) error {
		log = append(log, "run:first:"+env.Source())
		return nil
	})
	reg.OnRun("second", func(context.Context, hooks.Environment) error {
		log = append(log, "run:second")
		return nil
	})

	tgt := &recordingTarget{log: &log}
	e := New(tgt, reg)
	res, err := e.Materialize(context.Background(), "base")
	require.NoError(t, err)

	assert.Equal(t, "base-1-2", res.Final)
	assert.Equal(t, []string{
		"inject:a",
		"inject:b",
		"materialize:base-1-2",
		"run:first:base-1-2",
		"run:second",
	}, log)
	assert.Same(t, res.Env, e.Active())
}

func TestMaterializeIsolatesFailures(t *testing.T) {
	rec := metrics.NewMemoryRecorder()
	reg := plugin.NewRegistry()
	reg.OnInject("add-1", suffix("-1"))
	reg.OnInject("add-2", suffix("-2"))
	reg.OnInject("boom", func(context.Context, string) (string, bool, error) { return "", false, errors.New("raise") })

	ran := false
	reg.OnRun("panics", func(context.Context, hooks.Environment) error { panic("runner bug") })
	reg.OnRun("after", func(context.Context, hooks.Environment) error {
		ran = true
		return nil
	})

	e := New(&recordingTarget{}, reg, WithRecorder(rec))
	res, err := e.Materialize(context.Background(), "base")
	require.NoError(t, err)

	assert.Equal(t, "base-1-2", res.Final)
	require.Len(t, res.Injection.Failed(), 1)
	assert.Equal(t, "boom", res.Injection.Failed()[0].Injector)
	assert.True(t, ran)
	require.Len(t, res.Runs.Failed(), 1)
	assert.Equal(t, "panics", res.Runs.Failed()[0].Runner)
	assert.Equal(t, 1, rec.Materialized["recording"])
}

func TestMaterializeTargetFailureKeepsPreviousEnvironment(t *testing.T) {
	reg := plugin.NewRegistry()
	runs := 0
	reg.OnRun("count", func(context.Context, hooks.Environment) error {
		runs++
		return nil
	})

	tgt := &recordingTarget{}
	e := New(tgt, reg)
	_, err := e.Materialize(context.Background(), "v1")
	require.NoError(t, err)
	first := e.Active()

	tgt.fail = errors.New("syntax error")
	res, err := e.Materialize(context.Background(), "v2")
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryMaterialize))
	assert.Equal(t, "v2", res.Final)
	assert.Nil(t, res.Env)
	assert.Same(t, first, e.Active())
	assert.Equal(t, 1, runs, "runners must not run after a failed materialization")
}

func TestMaterializeClosesReplacedEnvironment(t *testing.T) {
	tgt := &recordingTarget{}
	e := New(tgt, plugin.NewRegistry())

	_, err := e.Materialize(context.Background(), "v1")
	require.NoError(t, err)
	_, err = e.Materialize(context.Background(), "v2")
	require.NoError(t, err)

	require.Len(t, tgt.built, 2)
	assert.True(t, tgt.built[0].closed)
	assert.False(t, tgt.built[1].closed)

	require.NoError(t, e.Close())
	assert.True(t, tgt.built[1].closed)
	assert.Nil(t, e.Active())
}
