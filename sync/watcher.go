package sync

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher re-synchronizes a LocalSynchronizer whenever its file changes on
// disk. Watch errors are logged, never fatal; the periodic sync still runs.
type Watcher struct {
	synchronizer *LocalSynchronizer
	logger       *logrus.Logger
}

// NewWatcher wraps a local synchronizer with a file watcher.
func NewWatcher(synchronizer *LocalSynchronizer, logger *logrus.Logger) *Watcher {
	return &Watcher{synchronizer: synchronizer, logger: logger}
}

// Watch blocks until the context is cancelled, triggering a synchronize on
// every write to the split file. The parent directory is watched because
// editors typically replace the file instead of writing in place.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(w.synchronizer.filename)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugf("split file changed (%s), synchronizing", event.Op)
			if _, err := w.synchronizer.SynchronizeSplits(ctx, nil); err != nil {
				w.logger.Errorf("file-triggered sync failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("split file watcher error: %v", err)
		}
	}
}
