package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"banguard/internal/ban/ports"
	"banguard/pkg/platform/audit"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads the store when the data file is edited outside the process.
// It watches the parent directory because writes replace the file by rename.
type Watcher struct {
	store          *Store
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	debounce       time.Duration
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

func WithWatcherAuditPublisher(publisher ports.AuditPublisher) WatcherOption {
	return func(w *Watcher) {
		w.auditPublisher = publisher
	}
}

// WithDebounce sets how long the watcher waits for a burst of events to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func NewWatcher(store *Store, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:    store,
		logger:   slog.Default(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Changes whose content matches the
// store's last read or write are ignored.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	target := filepath.Clean(w.store.Path())
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	reloaded, err := w.store.ReloadIfChanged(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to reload data file", "path", w.store.Path(), "error", err)
		return
	}
	if reloaded {
		ports.LogAudit(ctx, w.logger, w.auditPublisher, audit.EventConfigReloaded, "path", w.store.Path())
	}
}
