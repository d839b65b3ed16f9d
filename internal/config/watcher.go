// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openglass/cloudcore/internal/log"
)

// Watch observes the config file and invokes onReload with the freshly
// loaded configuration whenever it changes. Only safe-to-reload fields
// (log level) should be applied by the callback; everything else requires a
// restart. Watch returns when ctx is cancelled or the watcher fails.
func Watch(ctx context.Context, configPath, version string, onReload func(AppConfig)) error {
	if configPath == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(configPath); err != nil {
		return err
	}

	logger := log.WithComponent("config")
	logger.Info().Str("path", configPath).Msg("watching config file for changes")

	var debounce *time.Timer
	reload := func() {
		cfg, err := NewLoader(configPath, version).Load()
		if err != nil {
			logger.Warn().Err(err).
				Str("event", "config.reload_failed").
				Msg("ignoring invalid config change")
			return
		}
		logger.Info().
			Str("event", "config.reloaded").
			Str("log_level", cfg.LogLevel).
			Msg("configuration reloaded")
		onReload(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
