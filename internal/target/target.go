// Package target materializes final text into a live environment.
//
// A target always builds a complete new environment; the engine swaps it in
// only after Materialize succeeds.
package target

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/hotpatch/internal/config"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
)

// Kinds of targets.
const (
	KindStarlark = "starlark"
	KindFile     = "file"
	KindHTML     = "html"
)

// Target turns text into an environment.
type Target interface {
	Kind() string
	Materialize(ctx context.Context, text string) (hooks.Environment, error)
}

// DispatchFunc invokes a named command; the starlark target exposes it as
// the dispatch builtin.
type DispatchFunc func(name string, args ...any) (any, error)

// New builds the target selected by cfg.
func New(cfg config.TargetConfig, dispatch DispatchFunc, logger *slog.Logger) (Target, error) {
	switch cfg.Kind {
	case "", KindStarlark:
		return NewStarlark(dispatch, logger), nil
	case KindFile:
		return NewFile(cfg.Path)
	case KindHTML:
		return NewHTML(), nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", cfg.Kind)
	}
}
