package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
)

// WatchInbox calls onChange after draft files appear in dir. Bursts of events
// within debounce collapse into one call. It blocks until ctx is done.
func WatchInbox(ctx context.Context, dir string, debounce time.Duration, onChange func(ctx context.Context)) error {
	logCtx := logging.WithComponent(ctx, "source.watch")
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create inbox %s", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errs.Wrapf(err, "watch %s", dir)
	}
	logging.Info(logCtx, "watching inbox", slog.String("dir", dir))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !IsDraftFile(filepath.Base(event.Name)) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(logCtx, "inbox watcher error", slog.Any("err", errs.Loggable(err)))
		case <-timer.C:
			onChange(ctx)
		}
	}
}
