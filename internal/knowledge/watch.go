package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 2 * time.Second

// Rebuilder is the part of Service the watcher drives.
type Rebuilder interface {
	Rebuild(ctx context.Context) (IngestStats, error)
}

var _ Rebuilder = (*Service)(nil)

// Watcher rebuilds the knowledge index after files change, so removed and
// shortened sources drop out of retrieval. Bursts of events within the
// debounce interval trigger a single rebuild.
type Watcher struct {
	dir      string
	index    Rebuilder
	debounce time.Duration
	logger   *zap.Logger

	// OnIngest, if set, is called after every rebuild attempt.
	OnIngest func(IngestStats, error)
}

// NewWatcher creates a watcher for dir. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, index Rebuilder, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, index: index, debounce: debounce, logger: logger}
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching knowledge directory", zap.String("dir", w.dir))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				_ = w.addTree(fw, event.Name)
			}
			w.logger.Debug("knowledge change", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("knowledge watcher error", zap.Error(err))

		case <-timer.C:
			stats, err := w.index.Rebuild(ctx)
			if err != nil {
				w.logger.Error("knowledge rebuild failed", zap.Error(err))
			}
			if w.OnIngest != nil {
				w.OnIngest(stats, err)
			}
		}
	}
}

// addTree watches root and every directory below it. Non-directories are
// ignored.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
