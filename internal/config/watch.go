package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wfce/gmgn-filter/internal/logging"
)

// watchSettle absorbs the burst of events an editor save produces.
const watchSettle = 150 * time.Millisecond

// Watch reloads path whenever it changes and hands each valid config to
// fn. Invalid edits are logged and skipped. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory; editors often replace the file by rename.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(path)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				settle = time.After(watchSettle)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("config watch error", "error", err)

		case <-settle:
			settle = nil
			cfg, err := Load(path)
			if err != nil {
				logging.Warn("config reload rejected", "path", path, "error", err)
				continue
			}
			logging.Info("config reloaded", "path", path)
			fn(cfg)
		}
	}
}
