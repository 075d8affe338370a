package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Monitor serves the current value of the options section and reloads it
// when the configuration file changes. Only Options is reloaded; everything
// else, the interceptor chain included, is fixed at startup.
type Monitor struct {
	path      string
	overrides []string
	logger    *slog.Logger
	current   atomic.Pointer[Options]

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange []func(Options)
}

// NewMonitor creates a monitor seeded with initial. path and overrides are
// re-applied on every reload so precedence matches LoadFrom.
func NewMonitor(path string, overrides []string, initial Options, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{path: path, overrides: overrides, logger: logger}
	m.current.Store(&initial)
	return m
}

// Current returns the latest options. Safe for concurrent use.
func (m *Monitor) Current() Options {
	return *m.current.Load()
}

// OnChange registers fn to be called after each successful reload.
func (m *Monitor) OnChange(fn func(Options)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the configuration and publishes its options section.
// A configuration that fails to load leaves the current value in place.
func (m *Monitor) Reload() error {
	cfg, err := LoadFrom(m.path, m.overrides)
	if err != nil {
		return fmt.Errorf("reload %s: %w", m.path, err)
	}

	opts := cfg.Options
	m.current.Store(&opts)

	m.mu.Lock()
	callbacks := slices.Clone(m.onChange)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(opts)
	}
	return nil
}

// Watch watches the configuration file until ctx is done. The parent
// directory is watched so that editors replacing the file are seen.
func (m *Monitor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	m.logger.Info("watching config file for changes", slog.String("path", m.path))

	target := filepath.Clean(m.path)
	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				m.logger.Debug("config watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				m.logger.Info("config file changed, reloading options", slog.String("path", event.Name))
				if err := m.Reload(); err != nil {
					m.logger.Error("failed to reload config",
						slog.String("error", err.Error()),
						slog.String("path", m.path))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the configuration file.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		err := m.watcher.Close()
		m.watcher = nil
		return err
	}
	return nil
}
