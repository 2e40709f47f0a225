package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/hotpatch/internal/app"
	"git.home.luguber.info/inful/hotpatch/internal/config"
	"git.home.luguber.info/inful/hotpatch/internal/observability"
)

// Global is bound into every command's Run.
type Global struct {
	Logger *slog.Logger
	// Out receives command output; defaults to os.Stdout.
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"hotpatch.yaml" env:"HOTPATCH_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Fetch or load the artifact, patch it and materialize it"`
	Exec     ExecCmd     `cmd:"" help:"Dispatch a named plugin command"`
	Cache    CacheCmd    `cmd:"" help:"Inspect or clear the cached artifact"`
	History  HistoryCmd  `cmd:"" help:"Show recorded runs"`
	Settings SettingsCmd `cmd:"" help:"List plugin settings and their effective values"`
	Daemon   DaemonCmd   `cmd:"" help:"Re-run on a schedule and when the configuration changes"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`

	logger *observability.Logger
}

// AfterApply runs after flag parsing and installs a terminal logger until
// the configuration is loaded.
func (c *CLI) AfterApply() error {
	return c.setupLogger(config.LoggingConfig{})
}

func (c *CLI) setupLogger(lc config.LoggingConfig) error {
	logger, err := observability.NewLogger(observability.LoggerOptions{Logging: lc, Verbose: c.Verbose})
	if err != nil {
		return err
	}
	if c.logger != nil {
		_ = c.logger.Close()
	}
	c.logger = logger
	slog.SetDefault(logger.Logger)
	return nil
}

// Logger is the current root logger.
func (c *CLI) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger.Logger
}

// Close releases the logger's file sinks.
func (c *CLI) Close() error {
	if c.logger == nil {
		return nil
	}
	return c.logger.Close()
}

// LoadConfig reads the configuration file and switches logging to its settings.
func (c *CLI) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if err := c.setupLogger(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads the configuration and assembles an instance.
func (c *CLI) openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	opts.Logger = c.Logger()
	return app.New(ctx, cfg, opts)
}
