package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/hotpatch/cmd/hotpatch/commands"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("hotpatch"),
		kong.Description("Fetch, cache, patch and materialize remote content"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version.Get().String()},
	)

	if err := ctx.Run(&commands.Global{Logger: cli.Logger(), Out: os.Stdout}, &cli); err != nil {
		// HandleError exits; log sinks are unbuffered files.
		derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
	_ = cli.Close()
}
