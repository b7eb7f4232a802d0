package local

import (
	"errors"
	"fmt"
	"mirrord/internal/logger"
	"mirrord/internal/model"
	"mirrord/internal/util"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Handle applies a single change event to the target tree. It never panics
// on I/O failures; every failure is returned as a result with Err set.
func (s *Syncer) Handle(event model.FileEvent) []model.SyncResult {
	switch event.Type {
	case model.EventCreate, model.EventWrite:
		return s.handleCopy(event)

	case model.EventChmod:
		return []model.SyncResult{s.handleChmod(event)}

	case model.EventRemove:
		return []model.SyncResult{s.handleRemove(event)}

	case model.EventRename:
		return s.handleRename(event)

	case model.EventError:
		logger.Log.Warn("watch error",
			zap.String("source", s.mapper.Source()),
			zap.Error(event.Err))
		return []model.SyncResult{{Event: event, Op: model.OpSkip, SrcPath: event.Path, Err: event.Err}}

	default:
		err := fmt.Errorf("unknown event type %q", event.Type)
		return []model.SyncResult{s.result(event, model.OpSkip, event.Path, "", err)}
	}
}

func (s *Syncer) handleCopy(event model.FileEvent) []model.SyncResult {
	dst, err := s.mapper.ToTarget(event.Path)
	if err != nil {
		return []model.SyncResult{s.result(event, model.OpCopy, event.Path, "", err)}
	}

	info, err := s.lstat(event.Path)
	if errors.Is(err, os.ErrNotExist) {
		// gone before the debounce window closed; its remove event follows
		return []model.SyncResult{s.result(event, model.OpSkip, event.Path, dst, nil)}
	}
	if err != nil {
		return []model.SyncResult{s.result(event, model.OpCopy, event.Path, dst, err)}
	}

	info, ok := s.resolve(event.Path, info)
	if !ok || (info.IsDir() && event.Type == model.EventWrite) {
		return []model.SyncResult{s.result(event, model.OpSkip, event.Path, dst, nil)}
	}

	defer s.unlockParent(dst)()

	var results []model.SyncResult
	if dstInfo, err := s.lstat(dst); err == nil {
		if dstInfo.IsDir() == info.IsDir() {
			if info.IsDir() {
				// entries created before the directory was watched
				s.fillDir(event, event.Path, dst, info.Mode().Perm(), dstInfo.Mode().Perm(), &results)
				return results
			}
		} else {
			// a remove and create of the same name merged into one create
			err := s.removeEntry(dst, dstInfo)
			results = append(results, s.result(event, model.OpRemove, event.Path, dst, err))
			if err != nil {
				return results
			}
		}
	}

	s.create(event, event.Path, dst, info, &results)
	return results
}

func (s *Syncer) handleChmod(event model.FileEvent) model.SyncResult {
	dst, err := s.mapper.ToTarget(event.Path)
	if err != nil {
		return s.result(event, model.OpChmod, event.Path, "", err)
	}

	info, err := s.fs.Stat(event.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s.result(event, model.OpSkip, event.Path, dst, nil)
	}
	if err != nil {
		return s.result(event, model.OpChmod, event.Path, dst, fmt.Errorf("failed to stat src: %w", err))
	}

	return s.result(event, model.OpChmod, event.Path, dst, s.fs.Chmod(dst, info.Mode().Perm()))
}

func (s *Syncer) handleRemove(event model.FileEvent) model.SyncResult {
	dst, err := s.mapper.ToTarget(event.Path)
	if err != nil {
		return s.result(event, model.OpRemove, event.Path, "", err)
	}

	if dst == s.mapper.Target() {
		return s.result(event, model.OpRemove, event.Path, dst, errRootOperation)
	}

	defer s.unlockParent(dst)()

	return s.result(event, model.OpRemove, event.Path, dst, util.RemoveIfExists(s.fs, dst))
}

func (s *Syncer) handleRename(event model.FileEvent) []model.SyncResult {
	oldDst, err := s.mapper.ToTarget(event.OldPath)
	if err != nil {
		return []model.SyncResult{s.result(event, model.OpRename, event.OldPath, "", err)}
	}
	newDst, err := s.mapper.ToTarget(event.Path)
	if err != nil {
		return []model.SyncResult{s.result(event, model.OpRename, event.Path, "", err)}
	}

	if oldDst == s.mapper.Target() || newDst == s.mapper.Target() {
		return []model.SyncResult{s.result(event, model.OpRename, event.Path, newDst, errRootOperation)}
	}

	exists, err := util.Exists(s.fs, oldDst)
	if err != nil {
		return []model.SyncResult{s.result(event, model.OpRename, event.Path, newDst, err)}
	}

	// never mirrored under the old name, so mirror the new one from scratch
	if !exists {
		created := event
		created.Type = model.EventCreate
		created.OldPath = ""
		return s.handleCopy(created)
	}

	if err := s.moveEntry(oldDst, newDst); err != nil {
		return []model.SyncResult{s.result(event, model.OpRename, event.Path, newDst, err)}
	}
	results := []model.SyncResult{s.result(event, model.OpRename, event.Path, newDst, nil)}

	// the entry now at the new name may differ from what was mirrored under the old one
	info, err := s.lstat(event.Path)
	if err != nil {
		return results
	}
	info, ok := s.resolve(event.Path, info)
	if !ok {
		return results
	}

	dstInfo, err := s.fs.Stat(newDst)
	if err != nil {
		return results
	}

	if info.IsDir() && dstInfo.IsDir() {
		s.fillDir(event, event.Path, newDst, info.Mode().Perm(), dstInfo.Mode().Perm(), &results)
		return results
	}

	if !info.IsDir() && !dstInfo.IsDir() && !sameContent(info, dstInfo) {
		results = append(results, s.result(event, model.OpCopy, event.Path, newDst, s.copyFile(event.Path, newDst, info)))
	}

	return results
}

func (s *Syncer) moveEntry(oldDst, newDst string) error {
	if err := s.fs.MkdirAll(filepath.Dir(newDst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	defer s.unlockParent(oldDst)()
	defer s.unlockParent(newDst)()

	oldInfo, err := s.lstat(oldDst)
	if err != nil {
		return err
	}

	// rename cannot replace a non-empty directory or change the kind of an entry
	if info, err := s.lstat(newDst); err == nil && (info.IsDir() || oldInfo.IsDir()) {
		if err := util.RemoveIfExists(s.fs, newDst); err != nil {
			return fmt.Errorf("failed to clear %s: %w", newDst, err)
		}
	}

	return s.fs.Rename(oldDst, newDst)
}
