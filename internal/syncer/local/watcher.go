package local

import (
	"fmt"
	"mirrord/internal/logger"
	"mirrord/internal/model"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports raw changes below a directory. fsnotify only watches single
// directories, so every subdirectory is added on start and when created.
//
// A move is reported as EventRename with OldPath set and Path empty, followed
// by EventCreate for the new path when it stays inside the tree.
type Watcher struct {
	fw       *fsnotify.Watcher
	eventCh  chan model.FileEvent
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool

	// owned by run once it started
	dirs map[string]struct{}
}

func New(bufferSize int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:      fw,
		eventCh: make(chan model.FileEvent, bufferSize),
		doneCh:  make(chan struct{}),
		dirs:    make(map[string]struct{}),
	}, nil
}

func (w *Watcher) Watch(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if _, err := os.Stat(absDir); err != nil {
		return fmt.Errorf("source directory not found: %w", err)
	}

	if err := w.addRecursive(absDir); err != nil {
		return err
	}

	logger.Log.Info("watcher started",
		zap.String("dir", absDir),
		zap.Int("directories", len(w.dirs)))

	w.started = true
	go w.run()

	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.dirs[path] = struct{}{}
			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

// forget drops the watches of a directory that left its place and of all
// its subdirectories, so no event is reported under the stale path.
func (w *Watcher) forget(path string) {
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir != path && !strings.HasPrefix(dir, prefix) {
			continue
		}

		_ = w.fw.Remove(dir)
		delete(w.dirs, dir)
	}
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("watcher stopping")
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			eventType := toEventType(fsEvent.Op)
			if eventType == "" {
				continue
			}

			event := model.FileEvent{
				Type:      eventType,
				Path:      fsEvent.Name,
				Timestamp: time.Now(),
			}

			switch eventType {
			case model.EventCreate:
				if info, err := os.Lstat(fsEvent.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsEvent.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", fsEvent.Name),
							zap.Error(err))
					} else {
						logger.Log.Debug("added new directory to watch",
							zap.String("path", fsEvent.Name))
					}
				}

			case model.EventRename:
				w.forget(fsEvent.Name)
				event.OldPath = fsEvent.Name
				event.Path = ""

			case model.EventRemove:
				w.forget(fsEvent.Name)
			}

			if !w.send(event) {
				return
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))

			if !w.send(model.FileEvent{Type: model.EventError, Err: err, Timestamp: time.Now()}) {
				return
			}
		}
	}
}

// send blocks until the event is taken so that no change is lost; the
// backlog then builds up in the kernel queue, which reports an overflow.
func (w *Watcher) send(event model.FileEvent) bool {
	select {
	case w.eventCh <- event:
		return true
	case <-w.doneCh:
		return false
	}
}

func (w *Watcher) Events() <-chan model.FileEvent {
	return w.eventCh
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.doneCh)
		_ = w.fw.Close()

		// run closes eventCh once it returns
		if !w.started {
			close(w.eventCh)
		}
	})
}

func toEventType(op fsnotify.Op) model.EventType {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventWrite
	case op.Has(fsnotify.Remove):
		return model.EventRemove
	case op.Has(fsnotify.Rename):
		return model.EventRename
	case op.Has(fsnotify.Chmod):
		return model.EventChmod
	default:
		return ""
	}
}
