package rewrite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotpatch/internal/config"
	"git.home.luguber.info/inful/hotpatch/internal/plugin"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

func registry(t *testing.T, values map[string]string, extra ...settings.Field) *plugin.Registry {
	t.Helper()
	schema, err := settings.NewSchema(append(config.BuiltinSettings(), extra...)...)
	require.NoError(t, err)
	v, err := settings.NewValues(schema, values)
	require.NoError(t, err)
	return plugin.NewRegistry(plugin.WithSettings(v))
}

func apply(reg *plugin.Registry, src string) (string, transforms.Report) {
	return transforms.NewChain(reg.Injectors()).Apply(context.Background(), src)
}

func TestRulesBecomeInjectorsInOrder(t *testing.T) {
	reg := registry(t, nil)
	require.NoError(t, reg.Register(New([]config.RewriteRule{
		{Name: "greet", Pattern: `hello`, Replace: "hi"},
		{Name: "shout", Pattern: `(\w+)!`, Replace: "${1}!!", All: true},
	})))

	out, report := apply(reg, "hello a! b!")
	assert.Equal(t, "hi a!! b!!", out)
	assert.Equal(t, 2, report.Count(transforms.OutcomeApplied))
	assert.Equal(t, "greet", reg.Injectors()[0].Name)
	assert.Equal(t, Name, reg.Injectors()[0].Plugin)
}

func TestRuleWithoutMatchIsUnchanged(t *testing.T) {
	reg := registry(t, nil)
	require.NoError(t, reg.Register(New([]config.RewriteRule{{Name: "nope", Pattern: `absent`, Replace: "x"}})))

	out, report := apply(reg, "text")
	assert.Equal(t, "text", out)
	assert.Equal(t, 1, report.Count(transforms.OutcomeUnchanged))
}

func TestPluginGate(t *testing.T) {
	reg := registry(t, map[string]string{EnabledSetting: "false"})
	require.NoError(t, reg.Register(New([]config.RewriteRule{{Name: "greet", Pattern: `a`, Replace: "b"}})))
	assert.Empty(t, reg.Injectors())
	assert.Len(t, reg.Plugins(), 1)
}

func TestRuleGate(t *testing.T) {
	reg := registry(t, map[string]string{"rule.off": "false"},
		settings.Field{Key: "rule.off", Type: settings.TypeBool, Default: "true"},
		settings.Field{Key: "rule.on", Type: settings.TypeBool, Default: "true"},
	)
	require.NoError(t, reg.Register(New([]config.RewriteRule{
		{Name: "off", Pattern: `a`, Replace: "b", EnabledBy: "rule.off"},
		{Name: "on", Pattern: `c`, Replace: "d", EnabledBy: "rule.on"},
	})))

	injectors := reg.Injectors()
	require.Len(t, injectors, 1)
	assert.Equal(t, "on", injectors[0].Name)
}

func TestInvalidPatternFailsInit(t *testing.T) {
	reg := registry(t, nil)
	err := reg.Register(New([]config.RewriteRule{{Name: "bad", Pattern: `(`, Replace: ""}}))
	require.Error(t, err)

	var perr *plugin.PluginError
	assert.ErrorAs(t, err, &perr)
}
