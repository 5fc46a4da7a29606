package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a single save produces.
const reloadDelay = 100 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config after
// each change settles. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so atomic saves that
// replace the file are seen without re-adding the watch. A reload that fails
// validation is logged and skipped; onChange only ever sees valid configs.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	slog.Info("bridge config: watching for changes", "path", abs)

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				slog.Error("bridge config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}
			slog.Info("bridge config: reloaded", "path", abs, "sources", len(cfg.Agent.Sources))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("bridge config: watcher error", "err", err)
		}
	}
}
