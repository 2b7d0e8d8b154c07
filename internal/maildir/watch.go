package maildir

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// DefaultWatchInterval is the minimum time between two rescans triggered
// by filesystem events.
const DefaultWatchInterval = 500 * time.Millisecond

// Watch rescans f whenever a file appears in, vanishes from or is renamed
// within its new or cur directory, at most once per interval. Events
// arriving while a rescan is scheduled are coalesced into it. Watch blocks
// until ctx is done and then returns nil.
func (f *Folder) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	for _, sub := range []string{"new", "cur"} {
		if err := w.Add(filepath.Join(string(f.dir), sub)); err != nil {
			return fmt.Errorf("watch %s: %w", sub, err)
		}
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if fire != nil {
				continue
			}
			timer = time.NewTimer(limiter.Reserve().Delay())
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("maildir watcher error", "folder", f.Name(), "error", err)
		case <-fire:
			fire = nil
			if _, err := f.Rescan(ctx); err != nil && ctx.Err() == nil {
				f.logger.Warn("maildir rescan failed", "folder", f.Name(), "error", err)
			}
		}
	}
}
