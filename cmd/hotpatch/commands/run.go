package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/hotpatch/internal/app"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	NoCache bool `name:"no-cache" help:"Ignore the configured cache and always fetch"`
	Print   bool `short:"p" help:"Print the materialized text"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, app.Options{NoCache: r.NoCache})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	run, err := a.Pipeline.Run(ctx)
	if err != nil {
		return err
	}
	// The process must not exit before the cache has been revalidated.
	rv := run.Wait()

	out := g.out()
	applied := run.Result.Injection.Count(transforms.OutcomeApplied)
	failed := run.Result.Injection.Count(transforms.OutcomeFailed)
	_, _ = fmt.Fprintf(out, "run:          %s\n", run.ID)
	_, _ = fmt.Fprintf(out, "cache:        %s\n", run.State)
	_, _ = fmt.Fprintf(out, "fingerprint:  %s\n", run.Fingerprint)
	_, _ = fmt.Fprintf(out, "injectors:    %d applied, %d failed\n", applied, failed)
	_, _ = fmt.Fprintf(out, "runners:      %d run, %d failed\n", len(run.Result.Runs.Results), len(run.Result.Runs.Failed()))
	if rv.Result != "" {
		_, _ = fmt.Fprintf(out, "revalidation: %s\n", rv.Result)
	}
	if r.Print {
		_, _ = fmt.Fprintln(out, run.Result.Final)
	}
	return nil
}
