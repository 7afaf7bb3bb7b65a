package enocean

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of events an editor save produces.
const DefaultReloadDebounce = 750 * time.Millisecond

// reloadTimeout bounds a single reload triggered by the watcher.
const reloadTimeout = 10 * time.Second

// ControlWatcher reloads the registry when the control file changes.
type ControlWatcher struct {
	path     string
	debounce time.Duration
	reload   func(ctx context.Context) error
	logger   Logger
}

// NewControlWatcher returns a watcher for path. A zero debounce uses DefaultReloadDebounce.
func NewControlWatcher(path string, debounce time.Duration, reload func(ctx context.Context) error, logger Logger) *ControlWatcher {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	return &ControlWatcher{path: path, debounce: debounce, reload: reload, logger: logger}
}

// Run watches the file's directory until ctx is cancelled. Write, Create and
// Rename events on the file restart the debounce timer; Remove is ignored
// until the file reappears.
func (w *ControlWatcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		abs = w.path
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating control file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(abs)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	trigger := func() {
		rctx, cancel := context.WithTimeout(ctx, reloadTimeout)
		defer cancel()
		if err := w.reload(rctx); err != nil && w.logger != nil {
			w.logger.Error("control file reload failed", "path", abs, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				if t != nil {
					t.Stop()
				}
				t = time.AfterFunc(w.debounce, trigger)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logWarn(w.logger, "control file watch error", "error", err)
		}
	}
}
