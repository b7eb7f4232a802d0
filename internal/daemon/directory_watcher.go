package daemon

import (
	"context"
	"errors"
	"fmt"
	"mirrord/internal/logger"
	"mirrord/internal/model"
	"mirrord/internal/syncer"

	"go.uber.org/zap"
)

// ErrSubscriptionClosed is returned by Run when the change subscription ends
// while the watcher was not asked to stop.
var ErrSubscriptionClosed = errors.New("event subscription closed")

type SourceFactory func(pair model.DirectoryPair) (syncer.EventSource, error)

// DirectoryWatcher mirrors one directory pair: it subscribes to changes,
// reconciles the target once, then applies the queued and live changes one at
// a time until its context is cancelled.
type DirectoryWatcher struct {
	pair      model.DirectoryPair
	syncer    syncer.Syncer
	newSource SourceFactory
	state     *PairState
	onResult  func(model.DirectoryPair, model.SyncResult)
}

func NewDirectoryWatcher(pair model.DirectoryPair, s syncer.Syncer, newSource SourceFactory) *DirectoryWatcher {
	return &DirectoryWatcher{
		pair:      pair,
		syncer:    s,
		newSource: newSource,
		state:     NewPairState(pair),
	}
}

// OnResult registers a hook called for every result, after the counters are
// updated. It must be set before Run.
func (w *DirectoryWatcher) OnResult(fn func(model.DirectoryPair, model.SyncResult)) {
	w.onResult = fn
}

func (w *DirectoryWatcher) Pair() model.DirectoryPair {
	return w.pair
}

func (w *DirectoryWatcher) State() model.WatcherState {
	return w.state.Current()
}

func (w *DirectoryWatcher) Snapshot() model.PairSnapshot {
	return w.state.Snapshot()
}

func (w *DirectoryWatcher) Run(ctx context.Context) error {
	defer func() {
		w.state.SetState(model.StateStopped)
		logger.Log.Info("watcher stopped",
			zap.String("src", w.pair.Source))
	}()

	// subscribe before reconciling so changes made during the pass queue up
	w.state.SetState(model.StateReconciling)

	src, err := w.newSource(w.pair)
	if err != nil {
		w.state.SetError(err)
		return fmt.Errorf("failed to create source for %s: %w", w.pair.Source, err)
	}

	if err := src.Start(); err != nil {
		src.Stop()
		w.state.SetError(err)
		return fmt.Errorf("failed to start source for %s: %w", w.pair.Source, err)
	}

	events := src.Events()
	defer func() {
		src.Stop()
		// unblock the pipeline so it can wind down
		go func() {
			for range events {
			}
		}()
	}()

	w.reconcile()

	if ctx.Err() != nil {
		return nil
	}

	w.state.SetState(model.StateWatching)
	logger.Log.Info("watching",
		zap.String("src", w.pair.Source),
		zap.String("dst", w.pair.Target))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				err := fmt.Errorf("%s: %w", w.pair.Source, ErrSubscriptionClosed)
				w.state.SetError(err)
				return err
			}

			if ctx.Err() != nil {
				return nil
			}

			for _, result := range w.syncer.Handle(event) {
				w.record(result)
			}
		}
	}
}

func (w *DirectoryWatcher) reconcile() {
	w.state.SetState(model.StateReconciling)
	logger.Log.Info("reconciling",
		zap.String("src", w.pair.Source),
		zap.String("dst", w.pair.Target))

	results, err := w.syncer.FullSync()

	var failed int
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
		w.record(result)
	}

	if err != nil {
		w.state.SetError(err)
		logger.Log.Error("reconciliation aborted",
			zap.String("src", w.pair.Source),
			zap.Error(err))
		return
	}

	logger.Log.Info("reconciled",
		zap.String("src", w.pair.Source),
		zap.Int("operations", len(results)),
		zap.Int("failed", failed))
}

func (w *DirectoryWatcher) record(result model.SyncResult) {
	w.state.RecordSync(result)
	if w.onResult != nil {
		w.onResult(w.pair, result)
	}
}
