package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestRegisterRunsInitImmediately(t *testing.T) {
	r := NewRegistry()
	initialized := false

	err := r.Register(Definition{
		Meta: Metadata{Name: "eager"},
		OnInit: func(ctx *Context) error {
			initialized = true
			assert.Equal(t, "eager", ctx.Plugin())
			return nil
		},
	})

	require.NoError(t, err)
	assert.True(t, initialized, "Init should run synchronously inside Register")
	require.Len(t, r.Plugins(), 1)
}

func TestRegisterIgnoresPluginsWithoutInit(t *testing.T) {
	r := NewRegistry()

	assert.NoError(t, r.Register(nil))
	assert.NoError(t, r.Register(metaOnly{}))
	assert.NoError(t, r.Register(Definition{Meta: Metadata{Name: "nil-init"}}))

	assert.Empty(t, r.Plugins())
}

func TestRegisterIsolatesInitFailures(t *testing.T) {
	logger, buf := bufferLogger()
	rec := metrics.NewMemoryRecorder()
	r := NewRegistry(WithLogger(logger), WithRecorder(rec))

	errInit := errors.New("missing anchor")
	err := r.Register(Definition{
		Meta:   Metadata{Name: "fails"},
		OnInit: func(*Context) error { return errInit },
	})
	var perr *PluginError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fails", perr.PluginName)
	assert.Equal(t, "init", perr.Operation)
	assert.ErrorIs(t, err, errInit)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryPlugin))

	err = r.Register(Definition{
		Meta:   Metadata{Name: "panics"},
		OnInit: func(*Context) error { panic("half-initialized") },
	})
	require.ErrorContains(t, err, "panic: half-initialized")

	laterRan := false
	require.NoError(t, r.Register(Definition{
		Meta: Metadata{Name: "later"},
		OnInit: func(ctx *Context) error {
			laterRan = true
			return nil
		},
	}))

	assert.True(t, laterRan)
	assert.Len(t, r.Plugins(), 3)
	assert.Contains(t, buf.String(), "Plugin init failed")
	assert.Equal(t, 1, rec.PluginInits["fails"][metrics.ResultFailed])
	assert.Equal(t, 1, rec.PluginInits["later"][metrics.ResultSuccess])
}

type brokenPlugin struct{ meta *Metadata }

func (p *brokenPlugin) Metadata() Metadata { return *p.meta }
func (p *brokenPlugin) Init(*Context) error { return nil }

func TestRegisterIsolatesMetadataFailures(t *testing.T) {
	logger, buf := bufferLogger()
	rec := metrics.NewMemoryRecorder()
	r := NewRegistry(WithLogger(logger), WithRecorder(rec))

	var typedNil *brokenPlugin
	err := r.Register(typedNil)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryPlugin))
	var perr *PluginError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "metadata", perr.Operation)
	assert.ErrorContains(t, err, "panic:")

	err = r.Register(&brokenPlugin{})
	require.ErrorContains(t, err, "panic:")

	err = r.Register(Definition{
		Meta:   Metadata{Name: "typo", EnabledBy: "feature.enabeld"},
		OnInit: func(*Context) error { return nil },
	})
	require.ErrorContains(t, err, "feature.enabeld")
	assert.True(t, derrors.IsCategory(err, derrors.CategoryPlugin))

	laterRan := false
	require.NoError(t, r.Register(Definition{
		Meta: Metadata{Name: "later"},
		OnInit: func(*Context) error {
			laterRan = true
			return nil
		},
	}))
	assert.True(t, laterRan)
	require.Len(t, r.Plugins(), 1)
	assert.Contains(t, buf.String(), "operation=metadata")
	assert.Equal(t, 1, rec.PluginInits["typo"][metrics.ResultFailed])
	assert.Equal(t, 2, rec.PluginInits["*plugin.brokenPlugin"][metrics.ResultFailed])
}

func TestDispatchUnknownCommand(t *testing.T) {
	logger, buf := bufferLogger()
	r := NewRegistry(WithLogger(logger))

	var (
		got any
		err error
	)
	assert.NotPanics(t, func() { got, err = r.Dispatch("nonexistent") })
	assert.Nil(t, got)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Unknown command")
	assert.Contains(t, buf.String(), "command=nonexistent")
}

func TestDefineCommandLastWins(t *testing.T) {
	r := NewRegistry()
	r.DefineCommand("greet", func(args ...any) (any, error) { return "first", nil })
	r.DefineCommand("greet", func(args ...any) (any, error) {
		return "hello " + args[0].(string), nil
	})
	r.DefineCommand("dropped", nil)

	got, err := r.Dispatch("greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, []string{"greet"}, r.Commands())
}

func TestDispatchReturnsHandlerError(t *testing.T) {
	r := NewRegistry()
	r.DefineCommand("broken", func(...any) (any, error) { return nil, assert.AnError })

	_, err := r.Dispatch("broken")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOnInjectAndOnRunDropNil(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Meta: Metadata{Name: "ext"},
		OnInit: func(ctx *Context) error {
			ctx.OnInject("", nil)
			ctx.OnRun("", nil)
			ctx.OnInject("suffix", func(_ context.Context, src string) (string, bool, error) {
				return src + "!", true, nil
			})
			ctx.OnInject("", func(_ context.Context, src string) (string, bool, error) {
				return src, false, nil
			})
			ctx.OnRun("after", func(context.Context, hooks.Environment) error { return nil })
			return nil
		},
	}))

	injectors := r.Injectors()
	require.Len(t, injectors, 2)
	assert.Equal(t, "suffix", injectors[0].Name)
	assert.Equal(t, "ext", injectors[0].Plugin)
	assert.Equal(t, "ext#2", injectors[1].Name)

	runners := r.Runners()
	require.Len(t, runners, 1)
	assert.Equal(t, "after", runners[0].Name)
}

func TestRegisterHonorsSettingsGate(t *testing.T) {
	schema, err := settings.NewSchema(settings.Field{Key: "feature.enabled", Type: settings.TypeBool, Default: "true"})
	require.NoError(t, err)
	values, err := settings.NewValues(schema, map[string]string{"feature.enabled": "false"})
	require.NoError(t, err)
	logger, buf := bufferLogger()
	r := NewRegistry(WithSettings(values), WithLogger(logger))

	ran := false
	require.NoError(t, r.Register(Definition{
		Meta: Metadata{Name: "gated", EnabledBy: "feature.enabled"},
		OnInit: func(*Context) error {
			ran = true
			return nil
		},
	}))

	assert.False(t, ran)
	assert.Len(t, r.Plugins(), 1)
	assert.Contains(t, buf.String(), "disabled via settings")
}

func TestContextExposesSettings(t *testing.T) {
	schema, err := settings.NewSchema(settings.Field{Key: "rewrite.limit", Type: settings.TypeInt, Default: "3"})
	require.NoError(t, err)
	values, err := settings.NewValues(schema, nil)
	require.NoError(t, err)
	r := NewRegistry(WithSettings(values))

	var limit int
	require.NoError(t, r.Register(Definition{
		Meta: Metadata{Name: "reader"},
		OnInit: func(ctx *Context) error {
			var err error
			limit, err = ctx.Settings.Int("rewrite.limit")
			return err
		},
	}))
	assert.Equal(t, 3, limit)
}

func TestPackageDispatchUsesDefault(t *testing.T) {
	prev := defaultRegistry.Load()
	t.Cleanup(func() { defaultRegistry.Store(prev) })

	r := NewRegistry()
	r.DefineCommand("ping", func(...any) (any, error) { return "pong", nil })
	SetDefault(r)

	got, err := Dispatch("ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Same(t, r, Default())

	got, err = Dispatch("nonexistent")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestContextDispatchReachesRegistry(t *testing.T) {
	r := NewRegistry()
	r.DefineCommand("version", func(...any) (any, error) { return "1.0", nil })

	var got any
	require.NoError(t, r.Register(Definition{
		Meta: Metadata{Name: "caller"},
		OnInit: func(ctx *Context) error {
			var err error
			got, err = ctx.Dispatch("version")
			return err
		},
	}))
	assert.Equal(t, "1.0", got)
}
