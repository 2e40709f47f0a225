package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/hotpatch/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := root.Config
	if i.Output != "" {
		path = filepath.Join(i.Output, "hotpatch.yaml")
	}
	out := g.out()
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", path)
	if err := config.Init(path, i.Force); err != nil {
		_, _ = fmt.Fprintln(out, "Initialization failed")
		return err
	}
	_, _ = fmt.Fprintln(out, "initialized successfully")
	return nil
}
