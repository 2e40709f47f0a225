// Package hooks holds the runner chain: procedures invoked after the final
// text has been materialized, against the live environment.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
)

// Environment is the active program environment produced by a target.
// References into an environment become invalid once it is replaced.
type Environment interface {
	// Target names the materialization target kind (starlark, file, html).
	Target() string
	// Source returns the final text the environment was built from.
	Source() string
}

// RunFunc is a post-materialization procedure.
type RunFunc func(ctx context.Context, env Environment) error

// Runner is a named RunFunc.
type Runner struct {
	Name   string
	Plugin string
	Fn     RunFunc
}

// Result describes one runner invocation.
type Result struct {
	Runner   string
	Plugin   string
	Duration time.Duration
	Err      error
}

// Report lists runner results in execution order.
type Report struct {
	Results []Result
}

// Failed returns the results that carry an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Run invokes every runner in order. Each runner is isolated: an error or a
// panic is logged and recorded, and the next runner still runs.
func Run(ctx context.Context, env Environment, runners []Runner, logger *slog.Logger, recorder metrics.Recorder) Report {
	if logger == nil {
		logger = slog.Default()
	}
	recorder = metrics.OrNoop(recorder)

	report := Report{Results: make([]Result, 0, len(runners))}
	for _, r := range runners {
		start := time.Now()
		err := invoke(ctx, r, env)
		res := Result{Runner: r.Name, Plugin: r.Plugin, Duration: time.Since(start)}
		if err != nil {
			res.Err = derrors.RunnerFailed(r.Name, err)
			logger.ErrorContext(ctx, "Runner failed",
				logfields.Runner(r.Name),
				logfields.Plugin(r.Plugin),
				logfields.Error(err))
			recorder.IncRunnerResult(r.Name, metrics.ResultFailed)
		} else {
			recorder.IncRunnerResult(r.Name, metrics.ResultSuccess)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func invoke(ctx context.Context, r Runner, env Environment) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if r.Fn == nil {
		return nil
	}
	return r.Fn(ctx, env)
}
