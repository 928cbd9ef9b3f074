package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/buildrelay/internal/logfields"
)

// WatchFile watches a config file and calls apply with each successfully
// parsed new version. A version that fails to parse or validate is logged and
// skipped; the daemon keeps running on the previous configuration.
//
// The parent directory is watched rather than the file itself, since editors
// and config-management tools typically replace the file instead of writing
// it in place. Rapid event bursts are debounced.
func WatchFile(ctx context.Context, path string, logger *slog.Logger, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("Config reload failed, keeping previous configuration",
					slog.String("path", path), logfields.Error(err))
				continue
			}
			logger.Info("Configuration reloaded", slog.String("path", path))
			apply(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", logfields.Error(err))
		}
	}
}
