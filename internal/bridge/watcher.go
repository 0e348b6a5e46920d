package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher wakes the scheduler's bridge poll as soon as a correspondent
// drops a file into the inbox, instead of waiting out the poll interval.
// It is an accelerator only; the periodic poll remains the backstop.
type Watcher struct {
	dir    string
	logger *slog.Logger
	events chan struct{}
}

// NewWatcher creates a watcher for the given inbox directory.
func NewWatcher(dir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:    dir,
		logger: logger,
		events: make(chan struct{}, 1),
	}
}

// Events signals once per batch of inbox activity. The channel is never
// closed while the watcher runs; a full buffer coalesces signals.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start begins watching. It returns once the underlying watcher is
// registered; events flow until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				// Only arrivals matter; renames out of the inbox are our own.
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				select {
				case w.events <- struct{}{}:
				default:
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("bridge watcher error", "error", err)
			}
		}
	}()
	w.logger.Info("bridge inbox watcher started", "dir", w.dir)
	return nil
}
