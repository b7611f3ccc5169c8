package vfs

import (
	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/wal-cas/internal/obslog"
)

// watcher invalidates the facade's listing caches when a watched
// directory changes on disk, rather than re-scanning on every Ls call.
type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newWatcher(dirs []string, onChange func()) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	w := &watcher{fsw: fsw, done: make(chan struct{})}
	go w.run(onChange)
	return w, nil
}

func (w *watcher) run(onChange func()) {
	logger := obslog.WithComponent("vfs-watch")
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				onChange()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("fsnotify watch error")
		case <-w.done:
			return
		}
	}
}

func (w *watcher) close() {
	select {
	case <-w.done:
		return
	default:
		close(w.done)
	}
	w.fsw.Close()
}
