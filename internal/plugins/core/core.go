// Package core is the built-in plugin exposing introspection commands.
package core

import (
	"context"
	"fmt"
	"strconv"

	"git.home.luguber.info/inful/hotpatch/internal/cache"
	"git.home.luguber.info/inful/hotpatch/internal/plugin"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
	"git.home.luguber.info/inful/hotpatch/internal/version"
)

// Name is the plugin name.
const Name = "core"

// Command names.
const (
	CmdVersion     = "version"
	CmdFingerprint = "fingerprint"
	CmdInjectors   = "injectors"
	CmdRunners     = "runners"
	CmdCommands    = "commands"
	CmdSetting     = "setting"
)

// Catalog is the registry view read by the introspection commands.
// *plugin.Registry implements it.
type Catalog interface {
	Commands() []string
	Injectors() []transforms.Injector
	Runners() []hooks.Runner
}

// New returns the core plugin. store may be nil, in which case the
// fingerprint command reports an empty fingerprint.
func New(catalog Catalog, store cache.Store) plugin.Definition {
	return plugin.Definition{
		Meta: plugin.Metadata{
			Name:        Name,
			Version:     version.Version,
			Description: "Introspection commands: version, fingerprint, injectors, runners, commands, setting",
		},
		OnInit: func(ctx *plugin.Context) error {
			ctx.DefineCommand(CmdVersion, func(...any) (any, error) {
				return version.Get().String(), nil
			})
			ctx.DefineCommand(CmdFingerprint, fingerprintCommand(ctx.Context, store))
			ctx.DefineCommand(CmdInjectors, func(...any) (any, error) {
				injectors := catalog.Injectors()
				names := make([]string, len(injectors))
				for i, in := range injectors {
					names[i] = in.Name
				}
				return names, nil
			})
			ctx.DefineCommand(CmdRunners, func(...any) (any, error) {
				runners := catalog.Runners()
				names := make([]string, len(runners))
				for i, r := range runners {
					names[i] = r.Name
				}
				return names, nil
			})
			ctx.DefineCommand(CmdCommands, func(...any) (any, error) {
				return catalog.Commands(), nil
			})
			ctx.DefineCommand(CmdSetting, settingCommand(ctx.Settings))
			return nil
		},
	}
}

func fingerprintCommand(ctx context.Context, store cache.Store) plugin.CommandFunc {
	if ctx == nil {
		ctx = context.Background()
	}
	return func(...any) (any, error) {
		if store == nil {
			return "", nil
		}
		entry, ok, err := store.Load(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return "", nil
		}
		return entry.Fingerprint, nil
	}
}

type schemaProvider interface {
	Schema() *settings.Schema
}

func settingCommand(p settings.Provider) plugin.CommandFunc {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("setting: want 1 argument (key), got %d", len(args))
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("setting: key must be a string, got %T", args[0])
		}
		return Setting(p, key)
	}
}

// Setting renders the resolved value of key as a string, whatever its
// declared type.
func Setting(p settings.Provider, key string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	typ := settings.TypeString
	if sp, ok := p.(schemaProvider); ok {
		f, found := sp.Schema().Lookup(key)
		if !found {
			return "", fmt.Errorf("unknown setting %q", key)
		}
		typ = f.Type
	}
	switch typ {
	case settings.TypeBool:
		v, err := p.Bool(key)
		return strconv.FormatBool(v), err
	case settings.TypeInt:
		v, err := p.Int(key)
		return strconv.Itoa(v), err
	case settings.TypeFloat:
		v, err := p.Float(key)
		return strconv.FormatFloat(v, 'g', -1, 64), err
	default:
		return p.String(key)
	}
}
