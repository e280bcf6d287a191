package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloadable is anything that can re-read its configuration.
type Reloadable interface {
	Reload() error
}

// Reloader watches policy files for changes and triggers hot-reload.
type Reloader struct {
	target   Reloadable
	paths    []string
	logger   *zap.Logger
	Debounce time.Duration
}

// NewReloader creates a watcher for the given paths. Empty and missing
// paths are skipped.
func NewReloader(target Reloadable, paths []string, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	var watched []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		watched = append(watched, p)
	}
	return &Reloader{
		target:   target,
		paths:    watched,
		logger:   logger,
		Debounce: 500 * time.Millisecond,
	}
}

// Paths returns the files being watched.
func (r *Reloader) Paths() []string { return r.paths }

func (r *Reloader) String() string { return "reloader" }

// Serve watches for file changes and reloads. Blocks until ctx is cancelled.
// It satisfies suture.Service.
func (r *Reloader) Serve(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range r.paths {
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.Debounce, func() {
					if err := r.target.Reload(); err != nil {
						r.logger.Error("hot-reload failed", zap.String("file", event.Name), zap.Error(err))
					} else {
						r.logger.Info("hot-reload: policy reloaded", zap.String("file", event.Name))
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
