package spanstore

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher reports removal or replacement of a store's backing file.
type fileWatcher struct {
	w      *fsnotify.Watcher
	done   chan struct{}
	exited chan struct{}
}

// watchFile watches the directory holding path, since a watch on the
// file itself does not survive the file being replaced. onInvalid is
// called with ErrStoreInvalidated when path is removed or renamed away.
func watchFile(path string, onInvalid func(error), debug *DebugLogger) (*fileWatcher, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	fw := &fileWatcher{
		w:      w,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go fw.loop(target, onInvalid, debug)
	return fw, nil
}

func (fw *fileWatcher) loop(target string, onInvalid func(error), debug *DebugLogger) {
	defer close(fw.exited)
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				debug.Log("backing file %s: %s", event.Op, target)
				onInvalid(ErrStoreInvalidated)
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			debug.LogError("watch backing file", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (fw *fileWatcher) Close() {
	close(fw.done)
	_ = fw.w.Close()
	<-fw.exited
}
