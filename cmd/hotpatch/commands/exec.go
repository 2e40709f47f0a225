package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"git.home.luguber.info/inful/hotpatch/internal/app"
)

// ExecCmd implements the 'exec' command.
type ExecCmd struct {
	Name string   `arg:"" help:"Command name, e.g. version, fingerprint, injectors, setting"`
	Args []string `arg:"" optional:"" help:"Arguments passed to the command as strings"`
	JSON bool     `name:"json" help:"Print the result as JSON"`
}

func (e *ExecCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	args := make([]any, len(e.Args))
	for i, v := range e.Args {
		args[i] = v
	}
	result, err := a.Registry.Dispatch(e.Name, args...)
	if err != nil {
		return err
	}
	return printValue(g, result, e.JSON)
}

func printValue(g *Global, v any, asJSON bool) error {
	out := g.out()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		for _, s := range val {
			_, _ = fmt.Fprintln(out, s)
		}
	default:
		_, _ = fmt.Fprintln(out, val)
	}
	return nil
}

func newTable(g *Global) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(g.out())
	return t
}
