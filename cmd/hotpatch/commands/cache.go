package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/hotpatch/internal/app"
)

// CacheCmd groups the cache subcommands.
type CacheCmd struct {
	Show  CacheShowCmd  `cmd:"" default:"1" help:"Show the cached fingerprint and size"`
	Clear CacheClearCmd `cmd:"" help:"Remove the cached artifact so the next run starts cold"`
}

// CacheShowCmd implements 'cache show'.
type CacheShowCmd struct {
	Content bool `help:"Also print the cached text"`
}

func (c *CacheShowCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := g.out()
	entry, ok, err := a.Store.Load(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "backend:     %s\n", a.Config.Cache.Backend)
	if !ok {
		_, _ = fmt.Fprintln(out, "state:       cold (nothing cached)")
		return nil
	}
	_, _ = fmt.Fprintln(out, "state:       warm")
	_, _ = fmt.Fprintf(out, "fingerprint: %s\n", entry.Fingerprint)
	_, _ = fmt.Fprintf(out, "size:        %s\n", humanize.Bytes(uint64(len(entry.Content))))
	if c.Content {
		_, _ = fmt.Fprintln(out, entry.Content)
	}
	return nil
}

// CacheClearCmd implements 'cache clear'.
type CacheClearCmd struct{}

func (c *CacheClearCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Store.Clear(ctx); err != nil {
		return err
	}
	root.Logger().Info("Cache cleared")
	_, _ = fmt.Fprintln(g.out(), "cache cleared")
	return nil
}
