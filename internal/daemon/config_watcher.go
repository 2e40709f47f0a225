package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/hotpatch/internal/logfields"
)

// ConfigWatcher monitors the configuration file and calls onChange,
// debounced, after it was written, created or renamed.
type ConfigWatcher struct {
	configPath   string
	onChange     func(ctx context.Context) error
	watcher      *fsnotify.Watcher
	logger       *slog.Logger
	debounceTime time.Duration

	mu         sync.Mutex
	stopOnce   sync.Once
	stopChan   chan struct{}
	reloadChan chan struct{}
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, debounce time.Duration, onChange func(ctx context.Context) error, logger *slog.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigWatcher{
		configPath:   absPath,
		onChange:     onChange,
		watcher:      watcher,
		logger:       logger,
		debounceTime: debounce,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
	}, nil
}

// Start begins monitoring. The directory is watched rather than the file
// so editors that replace the file on save are still seen.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", configDir, err)
	}

	cw.logger.Info("Starting configuration watcher", logfields.Path(cw.configPath))

	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		cw.logger.Info("Stopping configuration watcher")
		close(cw.stopChan)
		err = cw.watcher.Close()
	})
	return err
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Rename):
				cw.logger.Debug("Config file change detected",
					logfields.Path(event.Name), slog.String("op", event.Op.String()))
				cw.triggerReload()
			case event.Op.Has(fsnotify.Remove):
				cw.logger.Warn("Config file removed", logfields.Path(event.Name))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-cw.stopChan:
			stop()
			return
		case <-cw.reloadChan:
			stop()
			timer = time.AfterFunc(cw.debounceTime, func() {
				if err := cw.onChange(ctx); err != nil {
					cw.logger.Error("Failed to apply configuration change", logfields.Error(err))
				}
			})
		}
	}
}

func (cw *ConfigWatcher) triggerReload() {
	select {
	case cw.reloadChan <- struct{}{}:
	default:
	}
}
