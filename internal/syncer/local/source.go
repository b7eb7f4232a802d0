package local

import (
	"fmt"
	"mirrord/internal/model"
	"mirrord/internal/pipeline"
	"path/filepath"
	"time"
)

// Source is the live subscription to one source tree: raw fsnotify events
// are debounced, renames are paired, and ignored paths are dropped.
type Source struct {
	path   string
	w      *Watcher
	events <-chan model.FileEvent
}

func NewSource(path string, bufSize int, debounce time.Duration, ignoreList []string) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid src path: %w", err)
	}

	w, err := New(bufSize)
	if err != nil {
		return nil, err
	}

	debounced := pipeline.Debounce(w.Events(), debounce)

	return &Source{
		path:   absPath,
		w:      w,
		events: pipeline.Filter(debounced, absPath, ignoreList),
	}, nil
}

func (s *Source) Events() <-chan model.FileEvent {
	return s.events
}

func (s *Source) Start() error {
	return s.w.Watch(s.path)
}

func (s *Source) Stop() {
	s.w.Stop()
}
