// Package transforms holds the injector chain: ordered text rewrites that run
// before the artifact is materialized.
package transforms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
)

// InjectFunc rewrites src. ok == false means "no change" and out is ignored.
type InjectFunc func(ctx context.Context, src string) (out string, ok bool, err error)

// Injector is a named InjectFunc. Plugin records the registering plugin, if any.
type Injector struct {
	Name   string
	Plugin string
	Fn     InjectFunc
}

// Outcome is the per-injector result recorded in a Report.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// StepResult describes one injector invocation.
type StepResult struct {
	Injector string
	Plugin   string
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Report lists the step results in application order.
type Report struct {
	Steps []StepResult
}

// Failed returns the steps that returned an error or panicked.
func (r Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			out = append(out, s)
		}
	}
	return out
}

// Count returns how many steps ended with the given outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Chain applies injectors in order. It is safe to reuse across runs.
type Chain struct {
	injectors []Injector
	logger    *slog.Logger
	recorder  metrics.Recorder
}

// Option configures a Chain.
type Option func(*Chain)

func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Chain) { c.recorder = metrics.OrNoop(r) }
}

// NewChain copies injectors so later registrations do not change this chain.
func NewChain(injectors []Injector, opts ...Option) *Chain {
	c := &Chain{
		injectors: append([]Injector(nil), injectors...),
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of injectors in the chain.
func (c *Chain) Len() int { return len(c.injectors) }

// Apply feeds src through every injector. A failing injector leaves the
// working text exactly as it was and the chain moves on to the next one.
func (c *Chain) Apply(ctx context.Context, src string) (string, Report) {
	working := src
	report := Report{Steps: make([]StepResult, 0, len(c.injectors))}

	for _, inj := range c.injectors {
		start := time.Now()
		out, ok, err := invoke(ctx, inj, working)
		step := StepResult{Injector: inj.Name, Plugin: inj.Plugin, Duration: time.Since(start)}

		switch {
		case err != nil:
			step.Outcome = OutcomeFailed
			step.Err = derrors.InjectorFailed(inj.Name, err)
			c.logger.ErrorContext(ctx, "Injector failed",
				logfields.Injector(inj.Name),
				logfields.Plugin(inj.Plugin),
				logfields.Error(err))
			c.recorder.IncInjectorResult(inj.Name, metrics.ResultFailed)
		case ok:
			working = out
			step.Outcome = OutcomeApplied
			c.recorder.IncInjectorResult(inj.Name, metrics.ResultApplied)
		default:
			step.Outcome = OutcomeUnchanged
			c.recorder.IncInjectorResult(inj.Name, metrics.ResultUnchanged)
		}
		report.Steps = append(report.Steps, step)
	}

	c.logger.DebugContext(ctx, "Injector chain complete",
		slog.Int("applied", report.Count(OutcomeApplied)),
		slog.Int("unchanged", report.Count(OutcomeUnchanged)),
		slog.Int("failed", report.Count(OutcomeFailed)))
	return working, report
}

// invoke calls one injector, converting a panic into an error.
func invoke(ctx context.Context, inj Injector, src string) (out string, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, ok, err = "", false, fmt.Errorf("panic: %v", rec)
		}
	}()
	if inj.Fn == nil {
		return "", false, nil
	}
	return inj.Fn(ctx, src)
}
