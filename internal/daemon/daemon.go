// Package daemon keeps a hotpatch instance running: it re-runs the pipeline
// on a schedule, re-applies the configuration when the file changes and
// serves Prometheus metrics.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/hotpatch/internal/app"
	"git.home.luguber.info/inful/hotpatch/internal/config"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
)

// Triggers recorded with each daemon run.
const (
	TriggerStartup      = "startup"
	TriggerSchedule     = "schedule"
	TriggerConfigChange = "config-change"
)

// Builder assembles an App from a configuration.
type Builder func(ctx context.Context, cfg *config.Config) (*app.App, error)

// Loader reads a configuration file.
type Loader func(path string) (*config.Config, error)

// Status is a snapshot of the daemon's run history.
type Status struct {
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastTrigger string    `json:"last_trigger,omitempty"`
	LastRunAt   time.Time `json:"last_run_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Daemon serializes pipeline runs against the current App.
type Daemon struct {
	configPath string
	logger     *slog.Logger
	registry   *prom.Registry
	recorder   metrics.Recorder
	load       Loader
	build      Builder

	mu  sync.Mutex
	cfg *config.Config
	app *app.App

	statusMu sync.Mutex
	status   Status

	runs     atomic.Int64
	failures atomic.Int64
}

// Option configures a Daemon.
type Option func(*Daemon)

func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRegistry sets the Prometheus registry the metrics are registered in and served from.
func WithRegistry(reg *prom.Registry) Option {
	return func(d *Daemon) {
		if reg != nil {
			d.registry = reg
		}
	}
}

// WithBuilder overrides how an App is assembled.
func WithBuilder(b Builder) Option {
	return func(d *Daemon) {
		if b != nil {
			d.build = b
		}
	}
}

// WithLoader overrides how the configuration file is read on change.
func WithLoader(l Loader) Option {
	return func(d *Daemon) {
		if l != nil {
			d.load = l
		}
	}
}

// New creates a daemon for cfg, which was loaded from configPath. An empty
// configPath disables the config watcher.
func New(configPath string, cfg *config.Config, opts ...Option) *Daemon {
	d := &Daemon{
		configPath: configPath,
		cfg:        cfg,
		logger:     slog.Default(),
		load:       config.Load,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = prom.NewRegistry()
		d.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	}
	d.recorder = metrics.NewPrometheusRecorder(d.registry)
	if d.build == nil {
		d.build = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg, app.Options{Logger: d.logger, Recorder: d.recorder})
		}
	}
	return d
}

// Recorder is the metrics recorder handed to the default builder.
func (d *Daemon) Recorder() metrics.Recorder { return d.recorder }

// Run blocks until ctx is cancelled. The first run happens immediately; a
// failing run is logged and retried on the next tick.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	cfg := d.cfg
	current, err := d.build(ctx, cfg)
	if err == nil {
		d.app = current
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	defer d.closeApp()

	_ = d.RunOnce(ctx, TriggerStartup)

	scheduler, err := NewScheduler(d.logger)
	if err != nil {
		return derrors.InternalError("scheduler", err)
	}
	if _, err := scheduler.ScheduleEvery("hotpatch-run", cfg.Daemon.IntervalDuration(), func() {
		_ = d.RunOnce(ctx, TriggerSchedule)
	}); err != nil {
		return derrors.ValidationFailed("daemon.interval", err.Error())
	}
	scheduler.Start()
	go scheduler.stopOnDone(ctx)

	if d.configPath != "" && !cfg.Daemon.DisableWatch {
		watcher, err := NewConfigWatcher(d.configPath, cfg.Daemon.DebounceDuration(), d.Reload, d.logger)
		if err != nil {
			return derrors.InternalError("config watcher", err)
		}
		if err := watcher.Start(ctx); err != nil {
			_ = watcher.Stop()
			return derrors.InternalError("config watcher", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	if cfg.Metrics.Enabled {
		srv := NewMetricsServer(cfg.Metrics, d.registry, d, d.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(sctx)
		}()
	}

	d.logger.Info("Daemon started",
		slog.Duration("interval", cfg.Daemon.IntervalDuration()),
		slog.Bool("watch", d.configPath != "" && !cfg.Daemon.DisableWatch))
	<-ctx.Done()
	d.logger.Info("Daemon stopping")
	return nil
}

// RunOnce executes the pipeline and waits for its revalidation. Runs never overlap.
func (d *Daemon) RunOnce(ctx context.Context, trigger string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil {
		return derrors.InternalError("daemon has no active instance", nil)
	}

	run, err := d.app.Pipeline.Run(ctx)
	d.runs.Add(1)
	if err != nil {
		d.failures.Add(1)
	}
	d.statusMu.Lock()
	d.status.LastTrigger = trigger
	d.status.LastRunAt = time.Now()
	d.status.LastRunID = ""
	if run != nil {
		d.status.LastRunID = run.ID
	}
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	} else {
		d.status.Fingerprint = run.Fingerprint
	}
	d.statusMu.Unlock()
	if err != nil {
		d.logger.Error("Daemon run failed", slog.String("trigger", trigger), logfields.Error(err))
		return err
	}

	rv := run.Wait()
	d.logger.Info("Daemon run finished",
		slog.String("trigger", trigger),
		logfields.RunID(run.ID),
		logfields.CacheState(string(run.State)),
		slog.String("revalidation", string(rv.Result)))
	return nil
}

// Reload re-reads the configuration, swaps in a freshly built instance and
// re-runs. A configuration that fails to load or assemble leaves the
// current instance in place.
func (d *Daemon) Reload(ctx context.Context) error {
	d.logger.Info("Reloading configuration", logfields.Path(d.configPath))
	cfg, err := d.load(d.configPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if cfg.Daemon.Interval != d.cfg.Daemon.Interval || cfg.Metrics != d.cfg.Metrics {
		d.logger.Warn("Daemon interval or metrics changes take effect after restart")
	}
	next, err := d.build(ctx, cfg)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	prev := d.app
	d.app = next
	d.cfg = cfg
	d.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			d.logger.Warn("Closing previous instance failed", logfields.Error(err))
		}
	}
	d.logger.Info("Configuration reloaded")
	return d.RunOnce(ctx, TriggerConfigChange)
}

// Status returns a snapshot of the run history.
func (d *Daemon) Status() Status {
	d.statusMu.Lock()
	s := d.status
	d.statusMu.Unlock()
	s.Runs = d.runs.Load()
	s.Failures = d.failures.Load()
	return s
}

func (d *Daemon) closeApp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil {
		return
	}
	if err := d.app.Close(); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("Closing instance failed", logfields.Error(err))
	}
	d.app = nil
}
