package local

import (
	"errors"
	"fmt"
	"mirrord/internal/logger"
	"mirrord/internal/model"
	"mirrord/internal/pathmap"
	"mirrord/internal/pipeline"
	"mirrord/internal/util"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrListing is returned by FullSync when a root directory cannot be listed.
var ErrListing = errors.New("failed to list directory")

var errRootOperation = errors.New("refusing to remove or move the target root")

const ownerRWX os.FileMode = 0700

type Syncer struct {
	fs     afero.Fs
	mapper *pathmap.Mapper
	ignore []string
}

type Option func(*Syncer)

func WithFs(fs afero.Fs) Option {
	return func(s *Syncer) {
		s.fs = fs
	}
}

func WithIgnoreList(patterns []string) Option {
	return func(s *Syncer) {
		s.ignore = patterns
	}
}

func NewSyncer(src, dst string, opts ...Option) (*Syncer, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("invalid src path: %w", err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return nil, fmt.Errorf("invalid dst path: %w", err)
	}

	s := &Syncer{
		fs:     afero.NewOsFs(),
		mapper: pathmap.New(absSrc, absDst),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Syncer) Source() string {
	return s.mapper.Source()
}

func (s *Syncer) Target() string {
	return s.mapper.Target()
}

// FullSync makes the whole target tree match the source tree. Failures on
// single entries are returned as results and do not stop the pass; only a
// failure to list the roots aborts it.
func (s *Syncer) FullSync() ([]model.SyncResult, error) {
	src, dst := s.mapper.Source(), s.mapper.Target()

	info, err := s.fs.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrListing, src, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w %s: not a directory", ErrListing, src)
	}

	if err := s.fs.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dst dir: %w", err)
	}

	srcEntries, err := s.list(src)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrListing, src, err)
	}
	dstEntries, err := s.list(dst)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrListing, dst, err)
	}

	var results []model.SyncResult
	s.merge(model.FileEvent{}, src, dst, srcEntries, dstEntries, &results)

	return results, nil
}

func (s *Syncer) reconcileDir(event model.FileEvent, srcDir, dstDir string, results *[]model.SyncResult) {
	srcEntries, err := s.list(srcDir)
	if err != nil {
		*results = append(*results, s.result(event, model.OpList, srcDir, dstDir, err))
		return
	}

	dstEntries, err := s.list(dstDir)
	if err != nil {
		*results = append(*results, s.result(event, model.OpList, srcDir, dstDir, err))
		return
	}

	s.merge(event, srcDir, dstDir, srcEntries, dstEntries, results)
}

// merge walks two name-sorted listings side by side.
func (s *Syncer) merge(event model.FileEvent, srcDir, dstDir string, srcEntries, dstEntries []os.FileInfo, results *[]model.SyncResult) {
	i, j := 0, 0
	for i < len(srcEntries) || j < len(dstEntries) {
		switch {
		case j >= len(dstEntries) || (i < len(srcEntries) && srcEntries[i].Name() < dstEntries[j].Name()):
			name := srcEntries[i].Name()
			s.create(event, filepath.Join(srcDir, name), filepath.Join(dstDir, name), srcEntries[i], results)
			i++

		case i >= len(srcEntries) || dstEntries[j].Name() < srcEntries[i].Name():
			dstPath := filepath.Join(dstDir, dstEntries[j].Name())
			*results = append(*results, s.result(event, model.OpRemove, "", dstPath, s.removeEntry(dstPath, dstEntries[j])))
			j++

		default:
			name := srcEntries[i].Name()
			s.update(event, filepath.Join(srcDir, name), filepath.Join(dstDir, name), srcEntries[i], dstEntries[j], results)
			i++
			j++
		}
	}
}

func (s *Syncer) create(event model.FileEvent, srcPath, dstPath string, info os.FileInfo, results *[]model.SyncResult) {
	info, ok := s.resolve(srcPath, info)
	if !ok {
		*results = append(*results, s.result(event, model.OpSkip, srcPath, dstPath, nil))
		return
	}

	if info.IsDir() {
		err := s.mkdir(dstPath, info.Mode())
		*results = append(*results, s.result(event, model.OpMkdir, srcPath, dstPath, err))
		if err == nil {
			s.fillDir(event, srcPath, dstPath, info.Mode().Perm(), info.Mode().Perm()|ownerRWX, results)
		}
		return
	}

	*results = append(*results, s.result(event, model.OpCopy, srcPath, dstPath, s.copyFile(srcPath, dstPath, info)))
}

func (s *Syncer) update(event model.FileEvent, srcPath, dstPath string, srcInfo, dstInfo os.FileInfo, results *[]model.SyncResult) {
	srcInfo, ok := s.resolve(srcPath, srcInfo)
	if !ok {
		*results = append(*results, s.result(event, model.OpSkip, srcPath, dstPath, nil))
		return
	}

	if srcInfo.IsDir() != dstInfo.IsDir() {
		err := s.removeEntry(dstPath, dstInfo)
		*results = append(*results, s.result(event, model.OpRemove, srcPath, dstPath, err))
		if err == nil {
			s.create(event, srcPath, dstPath, srcInfo, results)
		}
		return
	}

	if srcInfo.IsDir() {
		s.fillDir(event, srcPath, dstPath, srcInfo.Mode().Perm(), dstInfo.Mode().Perm(), results)
		return
	}

	switch {
	case !sameContent(srcInfo, dstInfo):
		*results = append(*results, s.result(event, model.OpCopy, srcPath, dstPath, s.copyFile(srcPath, dstPath, srcInfo)))
	case srcInfo.Mode().Perm() != dstInfo.Mode().Perm():
		*results = append(*results, s.result(event, model.OpChmod, srcPath, dstPath, s.fs.Chmod(dstPath, srcInfo.Mode().Perm())))
	}
}

// fillDir reconciles dstDir while its owner can write to it and leaves it
// with perm afterwards. have is the current mode of dstDir; a CHMOD result
// is only reported when have differs from perm.
func (s *Syncer) fillDir(event model.FileEvent, srcDir, dstDir string, perm, have os.FileMode, results *[]model.SyncResult) {
	current := have
	if have&ownerRWX != ownerRWX {
		current = have | ownerRWX
		if err := s.fs.Chmod(dstDir, current); err != nil {
			*results = append(*results, s.result(event, model.OpChmod, srcDir, dstDir, err))
			return
		}
	}

	s.reconcileDir(event, srcDir, dstDir, results)

	if current == perm {
		return
	}

	err := s.fs.Chmod(dstDir, perm)
	if err != nil || have != perm {
		*results = append(*results, s.result(event, model.OpChmod, srcDir, dstDir, err))
	}
}

// unlockParent gives the owner write access to the directory holding path
// and returns a func restoring its previous mode.
func (s *Syncer) unlockParent(path string) func() {
	dir := filepath.Dir(path)
	info, err := s.fs.Stat(dir)
	if err != nil || info.Mode().Perm()&ownerRWX == ownerRWX {
		return func() {}
	}

	perm := info.Mode().Perm()
	if err := s.fs.Chmod(dir, perm|ownerRWX); err != nil {
		return func() {}
	}

	return func() {
		if err := s.fs.Chmod(dir, perm); err != nil {
			logger.Log.Warn("failed to restore directory mode",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}
}

// resolve follows symlinks to files. Links to directories are not descended
// into, so a link cycle or a link leading out of the tree is never mirrored.
// Those, dangling links and special files are reported as not ok.
func (s *Syncer) resolve(path string, info os.FileInfo) (os.FileInfo, bool) {
	if info.Mode()&os.ModeSymlink != 0 {
		resolved, err := s.fs.Stat(path)
		if err != nil {
			logger.Log.Debug("skipping dangling symlink",
				zap.String("path", path),
				zap.Error(err))
			return nil, false
		}
		if resolved.IsDir() {
			logger.Log.Debug("skipping symlink to directory",
				zap.String("path", path))
			return nil, false
		}
		info = resolved
	}

	if !info.IsDir() && !info.Mode().IsRegular() {
		logger.Log.Debug("skipping special file",
			zap.String("path", path),
			zap.String("mode", info.Mode().String()))
		return nil, false
	}

	return info, true
}

// lstat does not follow a final symlink when the file system supports it.
func (s *Syncer) lstat(path string) (os.FileInfo, error) {
	if l, ok := s.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}

	return s.fs.Stat(path)
}

func (s *Syncer) list(dir string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}

	if len(s.ignore) == 0 {
		return entries, nil
	}

	kept := entries[:0]
	for _, entry := range entries {
		if pipeline.Ignored(entry.Name(), s.ignore) {
			continue
		}
		kept = append(kept, entry)
	}

	return kept, nil
}

func (s *Syncer) removeEntry(path string, info os.FileInfo) error {
	if info.IsDir() {
		return util.RemoveIfExists(s.fs, path)
	}

	return s.fs.Remove(path)
}

// mkdir creates path so that its owner can fill it; fillDir applies the
// final mode once the subtree is mirrored.
func (s *Syncer) mkdir(path string, mode os.FileMode) error {
	perm := mode.Perm() | ownerRWX
	if err := s.fs.MkdirAll(path, perm); err != nil {
		return err
	}

	return s.fs.Chmod(path, perm)
}

func (s *Syncer) copyFile(src, dst string, info os.FileInfo) error {
	f, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open src: %w", err)
	}

	defer func(f afero.File) {
		_ = f.Close()
	}(f)

	return util.AtomicWrite(s.fs, dst, f, info.Mode(), info.ModTime())
}

func (s *Syncer) result(event model.FileEvent, op model.Operation, src, dst string, err error) model.SyncResult {
	result := model.SyncResult{
		Event:   event,
		Op:      op,
		SrcPath: src,
		DstPath: dst,
	}

	if err != nil {
		path := dst
		if path == "" {
			path = src
		}
		result.Err = &model.OpError{Op: op, Path: path, Err: err}
	}

	switch {
	case result.Err != nil && errors.Is(result.Err, pathmap.ErrOutsideRoot):
		logger.Log.Error("path mapping failed, event ignored",
			zap.String("type", string(event.Type)),
			zap.String("path", event.Path),
			zap.Error(result.Err))
	case result.Err != nil:
		logger.Log.Error("sync failed",
			zap.String("op", string(op)),
			zap.String("src", src),
			zap.String("dst", dst),
			zap.Error(result.Err))
	case op == model.OpSkip:
		logger.Log.Debug("skipped",
			zap.String("type", string(event.Type)),
			zap.String("src", src))
	default:
		logger.Log.Info("synced",
			zap.String("op", string(op)),
			zap.String("src", src),
			zap.String("dst", dst))
	}

	return result
}

func sameContent(src, dst os.FileInfo) bool {
	return src.Size() == dst.Size() && src.ModTime().Equal(dst.ModTime())
}
