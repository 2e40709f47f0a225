package target

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Starlark executes the text as a Starlark program in a fresh thread.
type Starlark struct {
	dispatch DispatchFunc
	logger   *slog.Logger
	filename string
}

// NewStarlark creates a starlark target. dispatch may be nil.
func NewStarlark(dispatch DispatchFunc, logger *slog.Logger) *Starlark {
	if logger == nil {
		logger = slog.Default()
	}
	return &Starlark{dispatch: dispatch, logger: logger, filename: "artifact.star"}
}

func (s *Starlark) Kind() string { return KindStarlark }

// Materialize executes text. The resulting globals are frozen.
func (s *Starlark) Materialize(ctx context.Context, text string) (hooks.Environment, error) {
	thread, release := s.newThread(ctx, "materialize")
	defer release()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, s.filename, text, s.predeclared())
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return nil, fmt.Errorf("execute program: %s", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("execute program: %w", err)
	}
	globals.Freeze()
	return &StarlarkEnv{target: s, source: text, globals: globals}, nil
}

// newThread returns a thread cancelled when ctx is done. release must be
// called once the thread is no longer used.
func (s *Starlark) newThread(ctx context.Context, name string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Info(msg, slog.String("source", "starlark"))
		},
	}
	if ctx == nil {
		return thread, func() {}
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	return thread, func() { stop() }
}

func (s *Starlark) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"dispatch": starlark.NewBuiltin("dispatch", s.builtinDispatch),
		"log":      starlark.NewBuiltin("log", s.builtinLog),
	}
}

// dispatch(name, *args) forwards to the command registry.
func (s *Starlark) builtinDispatch(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing command name", b.Name())
	}
	name, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: command name must be a string, got %s", b.Name(), args[0].Type())
	}
	if s.dispatch == nil {
		return starlark.None, nil
	}
	goArgs := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := fromStarlark(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		goArgs = append(goArgs, v)
	}
	result, err := s.dispatch(name, goArgs...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", b.Name(), name, err)
	}
	return toStarlark(result)
}

// log(msg) writes msg to the process logger.
func (s *Starlark) builtinLog(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	s.logger.Info(msg, slog.String("source", "starlark"))
	return starlark.None, nil
}

// StarlarkEnv is a materialized Starlark program.
type StarlarkEnv struct {
	target  *Starlark
	source  string
	globals starlark.StringDict
}

func (e *StarlarkEnv) Target() string { return KindStarlark }
func (e *StarlarkEnv) Source() string { return e.source }

// Global returns a frozen global by name.
func (e *StarlarkEnv) Global(name string) (starlark.Value, bool) {
	v, ok := e.globals[name]
	return v, ok
}

// Globals returns the sorted global names.
func (e *StarlarkEnv) Globals() []string {
	names := make([]string, 0, len(e.globals))
	for name := range e.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasFunc reports whether name is a callable global.
func (e *StarlarkEnv) HasFunc(name string) bool {
	v, ok := e.globals[name]
	if !ok {
		return false
	}
	_, callable := v.(starlark.Callable)
	return callable
}

// Call invokes the global function fn with Go arguments and converts the
// result back to Go.
func (e *StarlarkEnv) Call(ctx context.Context, fn string, args ...any) (any, error) {
	v, ok := e.globals[fn]
	if !ok {
		return nil, fmt.Errorf("no global %q", fn)
	}
	callable, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("global %q is not callable (%s)", fn, v.Type())
	}
	sargs := make(starlark.Tuple, 0, len(args))
	for _, a := range args {
		sv, err := toStarlark(a)
		if err != nil {
			return nil, err
		}
		sargs = append(sargs, sv)
	}

	thread, release := e.target.newThread(ctx, fn)
	defer release()
	result, err := starlark.Call(thread, callable, sargs, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", fn, err)
	}
	return fromStarlark(result)
}

// EntrypointRunner returns a runner that calls the named function when the
// active environment is a Starlark program defining it.
func EntrypointRunner(name string) hooks.RunFunc {
	return func(ctx context.Context, env hooks.Environment) error {
		senv, ok := env.(*StarlarkEnv)
		if !ok || !senv.HasFunc(name) {
			return nil
		}
		_, err := senv.Call(ctx, name)
		return err
	}
}
