package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long Watch waits after the last event for the file
// before reloading it.
const settleDelay = 100 * time.Millisecond

// Watch reloads path once writes to it settle and hands each valid Config to
// onChange. It returns nil when ctx is cancelled.
//
// The containing directory is watched so editors that save by replacing the
// file keep being followed. Invalid content is logged and skipped, leaving the
// previous config in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(abs)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	slog.Info("server config: watching for changes", "path", abs)

	settle := time.NewTimer(settleDelay)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == abs && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				settle.Reset(settleDelay)
			}

		case <-settle.C:
			cfg, err := Load(abs)
			if err != nil {
				slog.Error("server config: reload rejected", "path", abs, "err", err)
				continue
			}
			slog.Info("server config: reloaded", "path", abs, "log_level", cfg.Server.Log.Level)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("server config: watcher error", "err", err)
		}
	}
}
