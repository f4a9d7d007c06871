package prompts

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads s whenever a Markdown file in dir changes, until ctx is
// cancelled. cb, if non-nil, is called with the kinds that changed.
func Watch(ctx context.Context, s *Set, dir string, logger *slog.Logger, cb func([]Kind)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("prompts watcher: started", slog.String("dir", dir))

	// Editors often write a file in several steps; collapse them into one reload.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDebounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("prompts watcher: stopped")
			return nil

		case <-reloadCh:
			changed, err := s.Reload()
			if err != nil {
				logger.Warn("prompts watcher: reload failed", slog.String("error", err.Error()))
			}
			if len(changed) == 0 {
				continue
			}
			for _, k := range changed {
				logger.Info("prompts watcher: reloaded", slog.String("kind", string(k)))
			}
			if cb != nil {
				cb(changed)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(filepath.Base(ev.Name), ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("prompts watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
