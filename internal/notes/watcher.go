package notes

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events a single commit produces.
const watchDebounce = 200 * time.Millisecond

// Watch follows writes made to the database file by other processes and
// reloads the service cache when they land, until ctx is cancelled.
// The service must be open.
func Watch(ctx context.Context, svc *Service, logger *slog.Logger) error {
	path := svc.Path()
	if path == "" {
		return ErrDatabaseIsNotOpen
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// SQLite replaces -journal files and creates -wal lazily, so watch the
	// directory rather than individual files.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	logger.Info("watcher: started", slog.String("path", path))

	var refreshTimer *time.Timer
	var refreshCh <-chan time.Time

	scheduleRefresh := func() {
		if refreshTimer == nil {
			refreshTimer = time.NewTimer(watchDebounce)
			refreshCh = refreshTimer.C
		} else {
			refreshTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if refreshTimer != nil {
				refreshTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-refreshCh:
			changed, err := svc.RefreshIfChanged(ctx)
			if err != nil {
				logger.Warn("watcher: refresh failed", slog.String("error", err.Error()))
				continue
			}
			if changed {
				logger.Debug("watcher: reloaded after external write")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isDatabaseFile(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleRefresh()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isDatabaseFile(name, base string) bool {
	if name == base {
		return true
	}
	suffix, ok := strings.CutPrefix(name, base)
	return ok && (suffix == "-wal" || suffix == "-journal")
}
