package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fsnotify events an editor or Save
// produces for a single logical change.
const reloadDebounce = 200 * time.Millisecond

// Watch observes the project config file and invokes apply with a freshly
// merged configuration after each change that passes validation. Invalid or
// unreadable configs are logged and skipped, keeping the last good config in
// effect. Returns when ctx is cancelled.
//
// The parent directory is watched rather than the file itself, since Save
// and most editors replace the file by rename.
func Watch(ctx context.Context, globalPath, projectPath string, apply func(*SchedulerConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(projectPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(projectPath)

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
				debounceC = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(reloadDebounce)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				log.Printf("event=config_reload_failed error=%q", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				log.Printf("event=config_reload_rejected error=%q", err)
				continue
			}
			log.Printf("event=config_reloaded path=%s max_concurrency=%d", projectPath, cfg.MaxConcurrency)
			apply(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("event=config_watch_error error=%q", err)
		}
	}
}
