// Package app assembles a runnable hotpatch instance from a configuration:
// settings, broker, cache store, plugin registry, target, engine, event
// recording and the pipeline.
package app

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/hotpatch/internal/broker"
	"git.home.luguber.info/inful/hotpatch/internal/cache"
	"git.home.luguber.info/inful/hotpatch/internal/config"
	"git.home.luguber.info/inful/hotpatch/internal/engine"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/eventstore"
	"git.home.luguber.info/inful/hotpatch/internal/fetch"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/pipeline"
	"git.home.luguber.info/inful/hotpatch/internal/plugin"
	"git.home.luguber.info/inful/hotpatch/internal/plugins/core"
	"git.home.luguber.info/inful/hotpatch/internal/plugins/rewrite"
	"git.home.luguber.info/inful/hotpatch/internal/retry"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
	"git.home.luguber.info/inful/hotpatch/internal/target"
)

// EntrypointPlugin is the name of the plugin registering the Starlark entrypoint runner.
const EntrypointPlugin = "entrypoint"

// Options tunes assembly.
type Options struct {
	Logger   *slog.Logger
	Recorder metrics.Recorder
	// NoCache replaces the configured backend with an in-memory store.
	NoCache bool
	// Plugins are registered after the built-in ones.
	Plugins []plugin.Plugin
}

// App is one assembled instance.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Settings *settings.Values
	Registry *plugin.Registry
	Store    cache.Store
	History  *eventstore.SQLiteStore
	Events   *eventstore.Recorder
	Target   target.Target
	Engine   *engine.Engine
	Pipeline *pipeline.Pipeline

	broker *broker.Client
}

// New assembles an App. The registry becomes the process default so the
// package-level plugin.Dispatch reaches it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := metrics.OrNoop(opts.Recorder)

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	values, err := cfg.SettingsValues()
	if err != nil {
		return nil, derrors.ValidationFailed("settings", err.Error())
	}
	a.Settings = values

	if err := a.connectBroker(cfg, opts.NoCache); err != nil {
		return nil, err
	}
	if err := a.openStore(ctx, cfg, opts.NoCache); err != nil {
		return nil, err
	}
	if err := a.openEvents(ctx, cfg); err != nil {
		return nil, err
	}

	a.Registry = plugin.NewRegistry(
		plugin.WithLogger(logger),
		plugin.WithSettings(values),
		plugin.WithRecorder(recorder),
		plugin.WithContext(ctx),
	)
	plugin.SetDefault(a.Registry)

	a.Target, err = target.New(cfg.Target, a.Registry.Dispatch, logger)
	if err != nil {
		return nil, derrors.ValidationFailed("target", err.Error())
	}

	builtins := []plugin.Plugin{
		core.New(a.Registry, a.Store),
		rewrite.New(cfg.Rewrites),
	}
	if entry := cfg.Target.Entrypoint; entry != "" && a.Target.Kind() == target.KindStarlark {
		builtins = append(builtins, plugin.Definition{
			Meta: plugin.Metadata{Name: EntrypointPlugin, Description: "Calls " + entry + "() after materialization"},
			OnInit: func(pctx *plugin.Context) error {
				pctx.OnRun(entry, target.EntrypointRunner(entry))
				return nil
			},
		})
	}
	for _, p := range append(builtins, opts.Plugins...) {
		// Init failures are isolated and already logged by the registry.
		_ = a.Registry.Register(p)
	}

	a.Engine = engine.New(a.Target, a.Registry,
		engine.WithLogger(logger),
		engine.WithRecorder(recorder))

	fetcher := fetch.New(cfg.Source.URL,
		fetch.WithTimeout(cfg.Source.TimeoutDuration()),
		fetch.WithHeaders(cfg.Source.Headers),
		fetch.WithMaxBytes(cfg.Source.MaxBytes),
		fetch.WithLogger(logger),
		fetch.WithRecorder(recorder))

	a.Pipeline = pipeline.New(a.Store, fetcher, a.Engine,
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(recorder),
		pipeline.WithEvents(a.Events),
		pipeline.WithRetryPolicy(retry.FromConfig(cfg.Source.Retry)),
		pipeline.WithTargetKind(a.Target.Kind()))

	ok = true
	return a, nil
}

func (a *App) connectBroker(cfg *config.Config, noCache bool) error {
	needed := cfg.Events.Enabled && cfg.Events.Subject != ""
	if !noCache && cache.Backend(cfg.Cache.Backend) == cache.BackendNATS {
		needed = true
	}
	if !needed {
		return nil
	}
	client, err := broker.Connect(cfg.NATS, a.Logger)
	if err != nil {
		return err
	}
	a.broker = client
	return nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, noCache bool) error {
	opts := cache.Options{
		Backend: cache.Backend(cfg.Cache.Backend),
		Path:    cfg.Cache.Path,
		Keys:    cache.Keys{Content: cfg.Cache.ContentKey, Fingerprint: cfg.Cache.FingerprintKey},
	}
	if noCache {
		opts.Backend = cache.BackendMemory
	}
	if opts.Backend == cache.BackendNATS {
		kv, err := a.broker.KeyValue(ctx, cfg.NATS.Bucket)
		if err != nil {
			return err
		}
		opts.KV = kv
	}
	store, err := cache.Open(opts)
	if err != nil {
		return derrors.CacheUnavailable("open", err).WithContext("backend", string(opts.Backend))
	}
	a.Store = store
	a.Logger.Debug("Cache store opened", logfields.Backend(string(opts.Backend)), logfields.Path(opts.Path))
	return nil
}

func (a *App) openEvents(ctx context.Context, cfg *config.Config) error {
	if !cfg.Events.Enabled {
		a.Events = eventstore.NewRecorder(a.Logger)
		return nil
	}
	var appenders []eventstore.Appender
	history, err := eventstore.NewSQLiteStore(cfg.Events.Path)
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "failed to open run history").
			WithContext("path", cfg.Events.Path)
	}
	a.History = history
	if pruned, err := history.PruneRuns(ctx, cfg.Events.RetainRuns); err != nil {
		a.Logger.Warn("Pruning run history failed", logfields.Error(err))
	} else if pruned > 0 {
		a.Logger.Debug("Pruned run history", slog.Int64("events", pruned), slog.Int("retain_runs", cfg.Events.RetainRuns))
	}
	appenders = append(appenders, history)
	if cfg.Events.Subject != "" && a.broker != nil {
		appenders = append(appenders, eventstore.NewNATSPublisher(a.broker.Conn(), cfg.Events.Subject))
	}
	a.Events = eventstore.NewRecorder(a.Logger, appenders...)
	return nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	if a.Engine != nil {
		errs = append(errs, a.Engine.Close())
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
	}
	return errors.Join(errs...)
}
