package plugin

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

// Context is handed to a plugin's Init. It is the plugin's only way to
// extend the pipeline; registrations made through it are attributed to the
// plugin in logs and reports.
type Context struct {
	// Context is the standard Go context for cancellation and deadlines.
	Context context.Context

	// Logger is scoped to the plugin.
	Logger *slog.Logger

	// Settings exposes the declared settings schema and the configured values.
	Settings settings.Provider

	plugin   string
	registry *Registry
}

// Plugin returns the name of the plugin being initialized.
func (c *Context) Plugin() string { return c.plugin }

// OnInject appends an injector to the chain. A nil fn is dropped.
func (c *Context) OnInject(name string, fn transforms.InjectFunc) {
	c.registry.addInjector(c.plugin, name, fn)
}

// OnRun appends a runner to the chain. A nil fn is dropped.
func (c *Context) OnRun(name string, fn hooks.RunFunc) {
	c.registry.addRunner(c.plugin, name, fn)
}

// DefineCommand registers a named command; an existing command of the same
// name is replaced.
func (c *Context) DefineCommand(name string, fn CommandFunc) {
	c.registry.defineCommand(c.plugin, name, fn)
}

// Dispatch invokes a command on the owning registry.
func (c *Context) Dispatch(name string, args ...any) (any, error) {
	return c.registry.Dispatch(name, args...)
}

// Enabled reports whether the boolean setting key is true. An empty key is
// always enabled.
func (c *Context) Enabled(key string) bool {
	return settings.Enabled(c.Settings, key)
}
