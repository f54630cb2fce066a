package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Watch reloads the config file on change and hands the result to apply.
// The watcher observes the parent directory so atomic rename-style saves
// (editor writes, configmap updates) are picked up too. Load errors keep the
// previous config in effect.
func Watch(ctx context.Context, path string, logger *zap.Logger, apply func(domain.Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("config_watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
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
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed, keeping previous", zap.Error(err))
					continue
				}
				logger.Info("config reloaded", zap.Int("actors", len(cfg.Actors)))
				apply(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", zap.Error(err))
			}
		}
	}()
	return nil
}
