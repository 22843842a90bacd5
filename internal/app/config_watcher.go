package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"bucketadmin/internal/config"
	"bucketadmin/internal/logging"
)

const (
	reloadDebounce  = 500 * time.Millisecond
	shutdownTimeout = 15 * time.Second
)

// watchConfig reloads the config file whenever it changes. Editors often
// replace the file instead of writing it, so the directory is watched.
func (a *App) watchConfig(ctx context.Context) (*fsnotify.Watcher, error) {
	absPath, err := filepath.Abs(a.configPath)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if p, _ := filepath.Abs(event.Name); p != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, a.reloadConfig)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	a.logger.Info("watching config", "path", absPath)
	return watcher, nil
}

func (a *App) reloadConfig() {
	cfg, err := config.ReadFromFile(a.configPath)
	if err != nil {
		a.logger.Warn("config reload failed; keeping current settings", "error", err)
		return
	}
	a.applyConfig(cfg)
}

// applyConfig re-applies the settings that can change without a restart:
// log level, admin credentials and the refresh schedule and concurrency.
// Other fields take effect on the next start.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	a.level.Set(logging.ParseLevel(cfg.LogLevel))
	a.srv.SetAdmin(cfg.Admin.Username, cfg.Admin.PasswordHash)
	a.catalogs.SetConcurrency(cfg.Refresh.Concurrency)
	if err := a.refresher.Reschedule(cfg.Refresh.Schedule); err != nil {
		a.logger.Warn("refresh schedule not applied", "error", err)
	}

	if prev.Listen != cfg.Listen || prev.DataDir != cfg.DataDir || prev.Secrets != cfg.Secrets {
		a.logger.Warn("listen, data_dir and secrets changes apply after restart")
	}
	a.logger.Info("config reloaded", "log_level", cfg.LogLevel, "schedule", cfg.Refresh.Schedule)
}
