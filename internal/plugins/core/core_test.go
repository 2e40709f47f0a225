package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotpatch/internal/cache"
	"git.home.luguber.info/inful/hotpatch/internal/plugin"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

func newRegistry(t *testing.T, store cache.Store) *plugin.Registry {
	t.Helper()
	schema, err := settings.NewSchema(
		settings.Field{Key: "name", Type: settings.TypeString, Default: "anon"},
		settings.Field{Key: "loud", Type: settings.TypeBool, Default: "false"},
		settings.Field{Key: "hue", Type: settings.TypeInt, Default: "0"},
		settings.Field{Key: "ratio", Type: settings.TypeFloat, Default: "0.5"},
	)
	require.NoError(t, err)
	values, err := settings.NewValues(schema, map[string]string{"loud": "true", "hue": "120"})
	require.NoError(t, err)

	reg := plugin.NewRegistry(plugin.WithSettings(values))
	require.NoError(t, reg.Register(New(reg, store)))
	return reg
}

func TestCoreCommandsRegistered(t *testing.T) {
	reg := newRegistry(t, nil)
	assert.Equal(t, []string{CmdCommands, CmdFingerprint, CmdInjectors, CmdRunners, CmdSetting, CmdVersion}, reg.Commands())

	out, err := reg.Dispatch(CmdVersion)
	require.NoError(t, err)
	assert.Contains(t, out, "hotpatch ")
}

func TestFingerprintCommand(t *testing.T) {
	store := cache.NewMemoryStore()
	reg := newRegistry(t, store)

	out, err := reg.Dispatch(CmdFingerprint)
	require.NoError(t, err)
	assert.Equal(t, "", out)

	require.NoError(t, store.Save(context.Background(), cache.Entry{Content: "x", Fingerprint: `"a1"`}))
	out, err = reg.Dispatch(CmdFingerprint)
	require.NoError(t, err)
	assert.Equal(t, `"a1"`, out)
}

func TestInjectorAndRunnerListing(t *testing.T) {
	reg := newRegistry(t, nil)
	require.NoError(t, reg.Register(plugin.Definition{
		Meta: plugin.Metadata{Name: "ext"},
		OnInit: func(ctx *plugin.Context) error {
			ctx.OnInject("first", func(_ context.Context, src string) (string, bool, error) { return src, false, nil })
			ctx.OnInject("second", func(_ context.Context, src string) (string, bool, error) { return src, false, nil })
			ctx.OnRun("after", func(context.Context, hooks.Environment) error { return nil })
			return nil
		},
	}))

	out, err := reg.Dispatch(CmdInjectors)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, out)

	out, err = reg.Dispatch(CmdRunners)
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, out)
}

func TestSettingCommand(t *testing.T) {
	reg := newRegistry(t, nil)

	cases := map[string]string{"name": "anon", "loud": "true", "hue": "120", "ratio": "0.5"}
	for key, want := range cases {
		out, err := reg.Dispatch(CmdSetting, key)
		require.NoError(t, err, key)
		assert.Equal(t, want, out, key)
	}

	_, err := reg.Dispatch(CmdSetting, "missing")
	assert.ErrorContains(t, err, "unknown setting")

	_, err = reg.Dispatch(CmdSetting)
	assert.Error(t, err)

	_, err = reg.Dispatch(CmdSetting, 42)
	assert.Error(t, err)
}
