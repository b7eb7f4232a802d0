package daemon

import (
	"context"
	"errors"
	"fmt"
	"mirrord/internal/config"
	"mirrord/internal/logger"
	"mirrord/internal/model"
	"mirrord/internal/repository"
	"mirrord/internal/syncer"
	"mirrord/internal/syncer/local"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager runs one DirectoryWatcher per configured pair. Watchers share no
// state; one failing does not stop the others.
type Manager struct {
	cfg       *config.Config
	fs        afero.Fs
	history   *repository.HistoryRepository
	newSource SourceFactory
	g         errgroup.Group

	mu       sync.RWMutex
	watchers []*DirectoryWatcher
}

type ManagerOption func(*Manager)

// WithHistory records every result in the history database.
func WithHistory(repo *repository.HistoryRepository) ManagerOption {
	return func(m *Manager) {
		m.history = repo
	}
}

func WithSourceFactory(fn SourceFactory) ManagerOption {
	return func(m *Manager) {
		m.newSource = fn
	}
}

func WithFs(fs afero.Fs) ManagerOption {
	return func(m *Manager) {
		m.fs = fs
	}
}

func NewManager(cfg *config.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg: cfg,
		fs:  afero.NewOsFs(),
	}
	m.newSource = m.localSource
	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) localSource(pair model.DirectoryPair) (syncer.EventSource, error) {
	return local.NewSource(pair.Source, m.cfg.BufferSize, m.cfg.Debounce, m.cfg.IgnoreList)
}

// Start launches the watchers. They run until ctx is cancelled; Wait joins them.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.watchers) > 0 {
		return errors.New("manager already started")
	}

	watchers := make([]*DirectoryWatcher, 0, len(m.cfg.Directories))
	for _, pair := range m.cfg.Directories {
		s, err := local.NewSyncer(pair.Source, pair.Target,
			local.WithFs(m.fs),
			local.WithIgnoreList(m.cfg.IgnoreList))
		if err != nil {
			return fmt.Errorf("failed to create syncer for %s: %w", pair.Source, err)
		}

		// watchers, status and history all report absolute roots
		pair = model.DirectoryPair{Source: s.Source(), Target: s.Target()}
		w := NewDirectoryWatcher(pair, s, m.newSource)
		w.OnResult(m.saveHistory)
		watchers = append(watchers, w)
	}

	m.watchers = watchers
	m.g.SetLimit(len(watchers))

	for _, w := range watchers {
		m.g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				logger.Log.Error("watcher failed",
					zap.String("src", w.Pair().Source),
					zap.Error(err))
				return err
			}
			return nil
		})

		logger.Log.Info("pair started",
			zap.String("src", w.Pair().Source),
			zap.String("dst", w.Pair().Target))
	}

	return nil
}

// Wait blocks until every watcher returned and reports the first failure.
func (m *Manager) Wait() error {
	return m.g.Wait()
}

func (m *Manager) Snapshots() []model.PairSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]model.PairSnapshot, 0, len(m.watchers))
	for _, w := range m.watchers {
		snaps = append(snaps, w.Snapshot())
	}

	return snaps
}

func (m *Manager) saveHistory(pair model.DirectoryPair, result model.SyncResult) {
	if m.history == nil || (result.Op == model.OpSkip && result.Err == nil) {
		return
	}

	if err := m.history.Save(pair.Source, result); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}
