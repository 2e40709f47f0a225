package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/hotpatch/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	NoWatch bool `name:"no-watch" help:"Do not re-run when the configuration file changes"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	if d.NoWatch {
		cfg.Daemon.DisableWatch = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := root.Logger()
	logger.Info("Starting daemon mode", "config", root.Config)
	if err := daemon.New(root.Config, cfg, daemon.WithLogger(logger)).Run(ctx); err != nil {
		return err
	}
	logger.Info("Daemon stopped successfully")
	return nil
}
