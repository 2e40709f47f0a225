// Package engine composes the final text and makes it the active environment.
package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/target"
)

// Chains supplies the injectors and runners, read at each materialization.
// *plugin.Registry implements it.
type Chains interface {
	Injectors() []transforms.Injector
	Runners() []hooks.Runner
}

// Result describes one materialization.
type Result struct {
	Final     string
	Env       hooks.Environment
	Injection transforms.Report
	Runs      hooks.Report
	Duration  time.Duration
}

// Engine runs injectors, materializes, swaps, then runs runners.
// Materializations are serialized.
type Engine struct {
	mu       sync.Mutex
	target   target.Target
	chains   Chains
	logger   *slog.Logger
	recorder metrics.Recorder

	activeMu sync.RWMutex
	active   hooks.Environment
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = metrics.OrNoop(r) }
}

// New creates an engine for target t.
func New(t target.Target, chains Chains, opts ...Option) *Engine {
	e := &Engine{
		target:   t,
		chains:   chains,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Materialize runs the injector chain over text, builds a new environment
// from the result and swaps it in, then runs every runner against it.
// A target failure leaves the previous environment active and runs no
// runner.
func (e *Engine) Materialize(ctx context.Context, text string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	chain := transforms.NewChain(e.chains.Injectors(),
		transforms.WithLogger(e.logger),
		transforms.WithRecorder(e.recorder))
	final, injection := chain.Apply(ctx, text)

	kind := e.target.Kind()
	buildStart := time.Now()
	env, err := e.target.Materialize(ctx, final)
	e.recorder.ObserveMaterializeDuration(kind, time.Since(buildStart), err == nil)
	if err != nil {
		e.logger.ErrorContext(ctx, "Materialization failed", logfields.Target(kind), logfields.Error(err))
		return &Result{Final: final, Injection: injection, Duration: time.Since(start)},
			derrors.MaterializeFailed(kind, err)
	}
	e.swap(ctx, env)

	e.logger.InfoContext(ctx, "Materialized artifact",
		logfields.Target(kind),
		logfields.Bytes(len(final)),
		slog.Int("injectors_failed", injection.Count(transforms.OutcomeFailed)))

	runs := hooks.Run(ctx, env, e.chains.Runners(), e.logger, e.recorder)
	return &Result{
		Final:     final,
		Env:       env,
		Injection: injection,
		Runs:      runs,
		Duration:  time.Since(start),
	}, nil
}

// swap installs env and discards the previous environment.
func (e *Engine) swap(ctx context.Context, env hooks.Environment) {
	e.activeMu.Lock()
	prev := e.active
	e.active = env
	e.activeMu.Unlock()

	closeEnv(ctx, e.logger, prev)
}

// Active returns the current environment, or nil before the first success.
func (e *Engine) Active() hooks.Environment {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()
	return e.active
}

// Close discards the active environment.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeMu.Lock()
	prev := e.active
	e.active = nil
	e.activeMu.Unlock()
	if c, ok := prev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeEnv(ctx context.Context, logger *slog.Logger, env hooks.Environment) {
	c, ok := env.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.WarnContext(ctx, "Closing previous environment failed", logfields.Error(err))
	}
}
