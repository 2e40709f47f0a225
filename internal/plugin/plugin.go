// Package plugin provides the registry through which extensions add
// injectors, runners and named commands to the hotpatch pipeline.
package plugin

import (
	"fmt"

	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

// Plugin is a unit of registration. Only plugins that also implement
// Initializer take part; others are ignored by Register.
type Plugin interface {
	// Metadata returns the plugin's identity.
	Metadata() Metadata
}

// Initializer is the one-shot lifecycle hook invoked at registration time.
// Init registers the plugin's injectors, runners and commands through ctx.
type Initializer interface {
	Init(ctx *Context) error
}

// Metadata describes a plugin.
type Metadata struct {
	// Name is the unique plugin identifier (e.g., "core", "rewrite").
	Name string

	// Version is an informational version string.
	Version string

	// Description provides a human-readable summary of the plugin's purpose.
	Description string

	// EnabledBy names a boolean setting gating the plugin. Empty means always on.
	EnabledBy string
}

// String returns a human-readable representation of the plugin metadata.
func (m Metadata) String() string {
	if m.Version == "" {
		return m.Name
	}
	return fmt.Sprintf("%s@%s", m.Name, m.Version)
}

// Validate checks the metadata against the settings the plugin will be
// given. A gate must name a declared bool setting. Names are optional.
func (m Metadata) Validate(p settings.Provider) error {
	if m.EnabledBy == "" {
		return nil
	}
	if p == nil {
		return fmt.Errorf("enabled_by %q: no settings", m.EnabledBy)
	}
	if _, err := p.Bool(m.EnabledBy); err != nil {
		return fmt.Errorf("enabled_by: %w", err)
	}
	return nil
}

// Definition builds a Plugin from a value and a function, for plugins that
// do not need their own type. A Definition whose OnInit is nil has no init
// capability and is ignored by Register.
type Definition struct {
	Meta   Metadata
	OnInit func(ctx *Context) error
}

// Metadata implements Plugin.
func (d Definition) Metadata() Metadata { return d.Meta }

// Init implements Initializer.
func (d Definition) Init(ctx *Context) error {
	if d.OnInit == nil {
		return nil
	}
	return d.OnInit(ctx)
}

// initializerOf returns the init capability of p, if it has one.
func initializerOf(p Plugin) (Initializer, bool) {
	switch d := p.(type) {
	case Definition:
		return d, d.OnInit != nil
	case *Definition:
		if d == nil {
			return nil, false
		}
		return d, d.OnInit != nil
	}
	in, ok := p.(Initializer)
	return in, ok
}
