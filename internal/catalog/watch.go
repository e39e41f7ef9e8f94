package catalog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"execengine/internal/logging"
)

// Watch starts a background goroutine that reloads the catalog
// whenever its file changes on disk. It watches the containing
// directory rather than the file itself so that editors which replace
// the file via rename (common for atomic saves) are still observed.
// onReload, if non-nil, is invoked with the freshly loaded settings
// after every successful reload, so callers can propagate changes
// such as a new max_concurrent_executions into a running admission
// gate. The goroutine stops when ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context, onReload func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

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
				if filepath.Clean(event.Name) != filepath.Clean(c.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.Reload(); err != nil {
					logging.L().Error("catalog reload failed", zap.Error(err))
					continue
				}
				logging.S().Infow("catalog reloaded", "path", c.path)
				if onReload != nil {
					onReload(c.Settings())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.L().Error("catalog watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
