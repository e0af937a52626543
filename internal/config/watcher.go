package config

import (
	"context"
	"path/filepath"

	"github.com/codefionn/parambridge/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and invokes onChange with the
// freshly loaded configuration whenever the file is written or replaced.
// It returns immediately; the watcher runs until ctx is cancelled. Editors
// often replace config files atomically, so the parent directory is watched
// rather than the file itself.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("Ignoring config reload, %s failed to load: %v", path, err)
					continue
				}
				logger.Info("Config file %s reloaded", path)
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error: %v", err)
			}
		}
	}()

	return nil
}
