package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/settings"
)

// Registry owns plugins, commands, injectors and runners for the lifetime
// of the process. Nothing is ever removed.
type Registry struct {
	mu        sync.RWMutex
	plugins   []Plugin
	commands  map[string]CommandFunc
	injectors []transforms.Injector
	runners   []hooks.Runner

	ctx      context.Context
	logger   *slog.Logger
	settings settings.Provider
	recorder metrics.Recorder
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSettings sets the provider handed to plugins through Context.Settings.
func WithSettings(p settings.Provider) Option {
	return func(r *Registry) { r.settings = p }
}

func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Registry) { r.recorder = metrics.OrNoop(rec) }
}

// WithContext sets the context passed to plugin Init calls.
func WithContext(ctx context.Context) Option {
	return func(r *Registry) {
		if ctx != nil {
			r.ctx = ctx
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		commands: make(map[string]CommandFunc),
		ctx:      context.Background(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.settings == nil {
		empty, _ := settings.NewValues(nil, nil)
		r.settings = empty
	}
	return r
}

// Register adds p and immediately runs its Init. Plugins without an init
// capability (including nil) are ignored and nil is returned. A plugin
// whose EnabledBy setting is off is kept but not initialized.
//
// Everything that calls into the plugin runs in its own isolation boundary:
// a returned error or a panic from Metadata or Init is logged and counted,
// and the error (category plugin, wrapping a *PluginError) is returned so
// later registrations proceed regardless. A plugin whose Metadata panics
// or does not validate is not kept.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return nil
	}
	init, ok := initializerOf(p)
	if !ok {
		r.logger.Debug("Ignoring plugin without init", slog.String("type", fmt.Sprintf("%T", p)))
		return nil
	}

	meta, err := safeMetadata(p)
	if err != nil {
		return r.initFailed(fmt.Sprintf("%T", p), "metadata", err)
	}
	name := meta.Name
	if name == "" {
		name = fmt.Sprintf("%T", p)
	}
	if err := meta.Validate(r.settings); err != nil {
		return r.initFailed(name, "metadata", err)
	}

	r.mu.Lock()
	r.plugins = append(r.plugins, p)
	r.mu.Unlock()

	r.logger.Info("Plugin registered", logfields.Plugin(name))

	if gate := meta.EnabledBy; !settings.Enabled(r.settings, gate) {
		r.logger.Info("Plugin disabled via settings", logfields.Plugin(name), slog.String("setting", gate))
		return nil
	}

	pctx := &Context{
		Context:  r.ctx,
		Logger:   r.logger.With(logfields.Plugin(name)),
		Settings: r.settings,
		plugin:   name,
		registry: r,
	}
	if err := safeInit(init, pctx); err != nil {
		return r.initFailed(name, "init", err)
	}
	r.recorder.IncPluginInit(name, metrics.ResultSuccess)
	return nil
}

func (r *Registry) initFailed(name, operation string, err error) error {
	herr := derrors.PluginInitFailed(name, NewPluginError(name, operation, err))
	r.logger.Error("Plugin init failed", logfields.Plugin(name), slog.String("operation", operation), logfields.Error(err))
	r.recorder.IncPluginInit(name, metrics.ResultFailed)
	return herr
}

func safeMetadata(p Plugin) (meta Metadata, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Metadata(), nil
}

func safeInit(init Initializer, pctx *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return init.Init(pctx)
}

// DefineCommand registers a command not owned by any plugin.
func (r *Registry) DefineCommand(name string, fn CommandFunc) {
	r.defineCommand("", name, fn)
}

func (r *Registry) defineCommand(owner, name string, fn CommandFunc) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	_, replaced := r.commands[name]
	r.commands[name] = fn
	r.mu.Unlock()

	r.logger.Debug("Command defined",
		logfields.Command(name),
		logfields.Plugin(owner),
		slog.Bool("replaced", replaced))
}

// Dispatch invokes the named command with args. An unknown name is reported
// as a warning and yields (nil, nil).
func (r *Registry) Dispatch(name string, args ...any) (any, error) {
	r.mu.RLock()
	fn, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("Unknown command", logfields.Command(name))
		return nil, nil
	}
	return fn(args...)
}

// OnInject appends an injector not owned by any plugin. A nil fn is dropped.
func (r *Registry) OnInject(name string, fn transforms.InjectFunc) {
	r.addInjector("", name, fn)
}

// OnRun appends a runner not owned by any plugin. A nil fn is dropped.
func (r *Registry) OnRun(name string, fn hooks.RunFunc) {
	r.addRunner("", name, fn)
}

func (r *Registry) addInjector(owner, name string, fn transforms.InjectFunc) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	if name == "" {
		name = fmt.Sprintf("%s#%d", ownerOrAnon(owner), len(r.injectors)+1)
	}
	r.injectors = append(r.injectors, transforms.Injector{Name: name, Plugin: owner, Fn: fn})
	r.mu.Unlock()

	r.logger.Debug("Injector registered", logfields.Injector(name), logfields.Plugin(owner))
}

func (r *Registry) addRunner(owner, name string, fn hooks.RunFunc) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	if name == "" {
		name = fmt.Sprintf("%s#%d", ownerOrAnon(owner), len(r.runners)+1)
	}
	r.runners = append(r.runners, hooks.Runner{Name: name, Plugin: owner, Fn: fn})
	r.mu.Unlock()

	r.logger.Debug("Runner registered", logfields.Runner(name), logfields.Plugin(owner))
}

func ownerOrAnon(owner string) string {
	if owner == "" {
		return "anonymous"
	}
	return owner
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

// Commands returns the sorted names of defined commands.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Injectors returns a copy of the injector chain in registration order.
func (r *Registry) Injectors() []transforms.Injector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]transforms.Injector(nil), r.injectors...)
}

// Runners returns a copy of the runner chain in registration order.
func (r *Registry) Runners() []hooks.Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]hooks.Runner(nil), r.runners...)
}

// Settings returns the provider given to plugins.
func (r *Registry) Settings() settings.Provider {
	return r.settings
}

// defaultRegistry backs the package-level Dispatch.
var defaultRegistry atomic.Pointer[Registry]

// SetDefault makes r the registry used by the package-level Dispatch.
func SetDefault(r *Registry) {
	defaultRegistry.Store(r)
}

// Default returns the registry set with SetDefault, creating an empty one
// on first use.
func Default() *Registry {
	if r := defaultRegistry.Load(); r != nil {
		return r
	}
	defaultRegistry.CompareAndSwap(nil, NewRegistry())
	return defaultRegistry.Load()
}

// Dispatch forwards to the default registry.
func Dispatch(name string, args ...any) (any, error) {
	return Default().Dispatch(name, args...)
}
