package artifacts

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a Store's spilled-artifact directory and drops an
// artifact's in-memory entry when its backing file is removed or
// renamed out-of-band (fsnotify; each event is handled as it arrives,
// without debouncing).
type Watcher struct {
	store   *Store
	fw      *fsnotify.Watcher
	logger  *slog.Logger
	mu      sync.Mutex
	closeCh chan struct{}
}

// NewWatcher starts watching store's base_dir/artifacts directory for
// external removals. Returns nil, nil if the store has no base_dir
// configured (nothing to watch).
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	if store.baseDir == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := store.baseDir + "/artifacts"
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{store: store, fw: fw, logger: logger, closeCh: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleRemoved(ev.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watcher error", "error", err)
		case <-w.closeCh:
			return
		}
	}
}

// handleRemoved drops the store's bookkeeping entry for any artifact
// whose spilled file path matches the removed path, so a subsequent
// RetrieveJSON reports "not found" instead of a stale read error.
func (w *Watcher) handleRemoved(path string) {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	for id, e := range w.store.items {
		if e.info.Storage == StorageFile && e.info.Path == path {
			delete(w.store.items, id)
			w.logger.Warn("artifact file removed externally, dropped entry", "id", id, "path", path)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.closeCh)
	return w.fw.Close()
}
