package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config whenever the file changes on disk and calls
// onReload with the fresh copy. Editors often write via rename, so the parent
// directory is watched and events are debounced.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, cfg *Config, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = ExpandHome(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var debounce *time.Timer
	lastHash := cfg.Hash()

	reload := func() {
		fresh, err := Load(path)
		if err != nil {
			slog.Warn("config reload failed", "error", err)
			return
		}
		if fresh.Hash() == lastHash {
			return
		}
		lastHash = fresh.Hash()
		cfg.ReplaceFrom(fresh)
		slog.Info("config reloaded", "path", path)
		if onReload != nil {
			onReload(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
