package daemon

import (
	"mirrord/internal/model"
	"sync"
	"time"
)

type PairState struct {
	mu        sync.RWMutex
	Source    string
	Target    string
	State     model.WatcherState
	StartedAt time.Time
	Synced    int
	Failed    int
	LastSync  *time.Time
	LastError string
}

func NewPairState(pair model.DirectoryPair) *PairState {
	return &PairState{
		Source:    pair.Source,
		Target:    pair.Target,
		State:     model.StateStarting,
		StartedAt: time.Now(),
	}
}

func (s *PairState) RecordSync(result model.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Op == model.OpSkip && result.Err == nil {
		return
	}

	s.LastSync = new(time.Now())
	if result.Err != nil {
		s.Failed++
		s.LastError = result.Err.Error()
	} else {
		s.Synced++
	}
}

func (s *PairState) SetState(state model.WatcherState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
}

func (s *PairState) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err.Error()
}

func (s *PairState) Current() model.WatcherState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

func (s *PairState) Snapshot() model.PairSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.PairSnapshot{
		Source:    s.Source,
		Target:    s.Target,
		State:     s.State,
		StartedAt: s.StartedAt,
		Synced:    s.Synced,
		Failed:    s.Failed,
		LastSync:  s.LastSync,
		LastError: s.LastError,
	}
}
