package local

import (
	"errors"
	"mirrord/internal/model"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSrc = "/src"
	testDst = "/dst"
)

func newTestSyncer(t *testing.T, fs afero.Fs, opts ...Option) *Syncer {
	t.Helper()

	s, err := NewSyncer(testSrc, testDst, append([]Option{WithFs(fs)}, opts...)...)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func names(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)

	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func failures(results []model.SyncResult) []model.SyncResult {
	var out []model.SyncResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// failingFs fails to open the paths in failOpen.
type failingFs struct {
	afero.Fs
	failOpen map[string]bool
}

var errInjected = errors.New("injected failure")

func (f *failingFs) Open(name string) (afero.File, error) {
	if f.failOpen[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: errInjected}
	}
	return f.Fs.Open(name)
}

// permFs refuses to add, remove or rename entries of a directory without the
// owner write bit, the way the kernel does for a non-root user.
type permFs struct {
	afero.Fs
}

func (p *permFs) writable(path string) error {
	info, err := p.Fs.Stat(filepath.Dir(path))
	if err == nil && info.Mode().Perm()&0200 == 0 {
		return &os.PathError{Op: "write", Path: path, Err: os.ErrPermission}
	}
	return nil
}

func (p *permFs) Create(name string) (afero.File, error) {
	return p.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
}

func (p *permFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 {
		if _, err := p.Fs.Stat(name); err != nil {
			if err := p.writable(name); err != nil {
				return nil, err
			}
		}
	}
	return p.Fs.OpenFile(name, flag, perm)
}

func (p *permFs) Mkdir(name string, perm os.FileMode) error {
	if err := p.writable(name); err != nil {
		return err
	}
	return p.Fs.Mkdir(name, perm)
}

func (p *permFs) MkdirAll(path string, perm os.FileMode) error {
	if _, err := p.Fs.Stat(path); err != nil {
		if err := p.writable(path); err != nil {
			return err
		}
	}
	return p.Fs.MkdirAll(path, perm)
}

func (p *permFs) Remove(name string) error {
	if err := p.writable(name); err != nil {
		return err
	}
	return p.Fs.Remove(name)
}

func (p *permFs) RemoveAll(path string) error {
	if err := p.writable(path); err != nil {
		return err
	}
	err := afero.Walk(p.Fs, path, func(name string, _ os.FileInfo, err error) error {
		if err != nil || name == path {
			return err
		}
		return p.writable(name)
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return p.Fs.RemoveAll(path)
}

func (p *permFs) Rename(oldname, newname string) error {
	if err := p.writable(oldname); err != nil {
		return err
	}
	if err := p.writable(newname); err != nil {
		return err
	}
	return p.Fs.Rename(oldname, newname)
}

// readOnlyTree mirrors a source holding directories with mode 0555.
func readOnlyTree(t *testing.T) (afero.Fs, *Syncer) {
	t.Helper()

	mem := afero.NewMemMapFs()
	writeFile(t, mem, "/src/ro/f.txt", "foxtrot")
	writeFile(t, mem, "/src/ro/sub/g.txt", "golf")
	require.NoError(t, mem.Chmod("/src/ro/sub", 0555))
	require.NoError(t, mem.Chmod("/src/ro", 0555))

	s := newTestSyncer(t, &permFs{Fs: mem})
	results, err := s.FullSync()
	require.NoError(t, err)
	require.Empty(t, failures(results))

	return mem, s
}

func perm(t *testing.T, fs afero.Fs, path string) os.FileMode {
	t.Helper()
	info, err := fs.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestFullSyncThenRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "alpha")
	writeFile(t, fs, "/src/b.txt", "bravo")
	require.NoError(t, fs.MkdirAll(testDst, 0755))
	s := newTestSyncer(t, fs)

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))
	assert.Len(t, results, 2)

	assert.Equal(t, []string{"a.txt", "b.txt"}, names(t, fs, testDst))
	assert.Equal(t, "alpha", readFile(t, fs, "/dst/a.txt"))
	assert.Equal(t, "bravo", readFile(t, fs, "/dst/b.txt"))

	require.NoError(t, fs.Remove("/src/a.txt"))
	handled := s.Handle(model.FileEvent{Type: model.EventRemove, Path: "/src/a.txt"})
	require.Len(t, handled, 1)
	assert.NoError(t, handled[0].Err)

	assert.Equal(t, []string{"b.txt"}, names(t, fs, testDst))
}

func TestFullSyncIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "alpha")
	writeFile(t, fs, "/src/sub/deep/c.txt", "charlie")
	require.NoError(t, fs.Chmod("/src/a.txt", 0600))
	s := newTestSyncer(t, fs)

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))
	assert.NotEmpty(t, results)

	results, err = s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFullSyncRemovesExtraEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/keep.txt", "keep")
	writeFile(t, fs, "/dst/keep.txt", "stale")
	writeFile(t, fs, "/dst/extra.txt", "extra")
	writeFile(t, fs, "/dst/olddir/nested/x.txt", "x")
	s := newTestSyncer(t, fs)

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))

	assert.Equal(t, []string{"keep.txt"}, names(t, fs, testDst))
	assert.Equal(t, "keep", readFile(t, fs, "/dst/keep.txt"))
}

func TestFullSyncRecursive(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/x/y/z.txt", "zulu")
	writeFile(t, fs, "/dst/x/y/old.txt", "old")
	s := newTestSyncer(t, fs)

	_, err := s.FullSync()
	require.NoError(t, err)

	assert.Equal(t, []string{"z.txt"}, names(t, fs, "/dst/x/y"))
	assert.Equal(t, "zulu", readFile(t, fs, "/dst/x/y/z.txt"))
}

func TestFullSyncReplacesKind(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/entry/inner.txt", "inner")
	writeFile(t, fs, "/dst/entry", "was a file")
	s := newTestSyncer(t, fs)

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))

	info, err := fs.Stat("/dst/entry")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "inner", readFile(t, fs, "/dst/entry/inner.txt"))
}

func TestFullSyncPreservesModeAndTime(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/run.sh", "#!/bin/sh")
	require.NoError(t, fs.Chmod("/src/run.sh", 0750))
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.Chtimes("/src/run.sh", mtime, mtime))
	s := newTestSyncer(t, fs)

	_, err := s.FullSync()
	require.NoError(t, err)

	info, err := fs.Stat("/dst/run.sh")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))

	// a mode-only change is propagated without a copy
	require.NoError(t, fs.Chmod("/src/run.sh", 0700))
	results, err := s.FullSync()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.OpChmod, results[0].Op)
}

func TestFullSyncFaultIsolation(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeFile(t, mem, "/src/a.txt", "alpha")
	writeFile(t, mem, "/src/b.txt", "bravo")
	writeFile(t, mem, "/src/c.txt", "charlie")
	fs := &failingFs{Fs: mem, failOpen: map[string]bool{"/src/b.txt": true}}
	s := newTestSyncer(t, fs)

	results, err := s.FullSync()
	require.NoError(t, err)

	failed := failures(results)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, errInjected)
	assert.Equal(t, model.OpCopy, failed[0].Op)

	var opErr *model.OpError
	require.ErrorAs(t, failed[0].Err, &opErr)
	assert.Equal(t, "/dst/b.txt", opErr.Path)

	assert.Equal(t, []string{"a.txt", "c.txt"}, names(t, mem, testDst))
}

func TestFullSyncNestedListingFailure(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeFile(t, mem, "/src/bad/x.txt", "x")
	writeFile(t, mem, "/src/good.txt", "good")
	fs := &failingFs{Fs: mem, failOpen: map[string]bool{"/src/bad": true}}
	s := newTestSyncer(t, fs)

	results, err := s.FullSync()
	require.NoError(t, err)

	failed := failures(results)
	require.Len(t, failed, 1)
	assert.Equal(t, model.OpList, failed[0].Op)
	assert.Equal(t, "good", readFile(t, mem, "/dst/good.txt"))
}

func TestFullSyncMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newTestSyncer(t, fs)

	_, err := s.FullSync()
	assert.ErrorIs(t, err, ErrListing)
}

func TestFullSyncIgnoreList(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "alpha")
	writeFile(t, fs, "/src/.git/HEAD", "ref")
	writeFile(t, fs, "/dst/.git/HEAD", "untouched")
	s := newTestSyncer(t, fs, WithIgnoreList([]string{".git"}))

	_, err := s.FullSync()
	require.NoError(t, err)

	assert.Equal(t, []string{".git", "a.txt"}, names(t, fs, testDst))
	assert.Equal(t, "untouched", readFile(t, fs, "/dst/.git/HEAD"))
}

func TestFullSyncReadOnlyDirectory(t *testing.T) {
	mem, s := readOnlyTree(t)

	assert.Equal(t, "foxtrot", readFile(t, mem, "/dst/ro/f.txt"))
	assert.Equal(t, "golf", readFile(t, mem, "/dst/ro/sub/g.txt"))
	assert.Equal(t, os.FileMode(0555), perm(t, mem, "/dst/ro"))
	assert.Equal(t, os.FileMode(0555), perm(t, mem, "/dst/ro/sub"))

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, results)

	// stale entries below a read-only directory are still removed
	writeFile(t, mem, "/dst/ro/sub/stale.txt", "stale")
	require.NoError(t, mem.Chmod("/dst/ro/sub", 0555))
	results, err = s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))
	assert.Equal(t, []string{"g.txt"}, names(t, mem, "/dst/ro/sub"))
	assert.Equal(t, os.FileMode(0555), perm(t, mem, "/dst/ro/sub"))
}

func TestFullSyncReadOnlyDirectoryOnDisk(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory modes are not enforced for root")
	}

	root := t.TempDir()
	src, dst := filepath.Join(root, "src"), filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "ro"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "ro", "f.txt"), []byte("foxtrot"), 0644))
	require.NoError(t, os.Chmod(filepath.Join(src, "ro"), 0555))
	t.Cleanup(func() {
		_ = os.Chmod(filepath.Join(src, "ro"), 0755)
		_ = os.Chmod(filepath.Join(dst, "ro"), 0755)
	})

	fs := afero.NewOsFs()
	s, err := NewSyncer(src, dst, WithFs(fs))
	require.NoError(t, err)

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))
	assert.Equal(t, "foxtrot", readFile(t, fs, filepath.Join(dst, "ro", "f.txt")))
	assert.Equal(t, os.FileMode(0555), perm(t, fs, filepath.Join(dst, "ro")))

	results, err = s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFullSyncSkipsSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	src, dst := filepath.Join(root, "src"), filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0644))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "link.txt")))
	require.NoError(t, os.Symlink(".", filepath.Join(src, "loop")))
	require.NoError(t, os.Symlink(root, filepath.Join(src, "up")))

	fs := afero.NewOsFs()
	s, err := NewSyncer(src, dst, WithFs(fs))
	require.NoError(t, err)

	results, err := s.FullSync()
	require.NoError(t, err)
	assert.Empty(t, failures(results))

	assert.Equal(t, []string{"a.txt", "link.txt"}, names(t, fs, dst))
	assert.Equal(t, "alpha", readFile(t, fs, filepath.Join(dst, "link.txt")))
	info, err := os.Lstat(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	var skipped int
	for _, r := range results {
		if r.Op == model.OpSkip {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)

	handled := s.Handle(model.FileEvent{Type: model.EventCreate, Path: filepath.Join(src, "loop")})
	require.Len(t, handled, 1)
	assert.Equal(t, model.OpSkip, handled[0].Op)
	assert.NoDirExists(t, filepath.Join(dst, "loop"))
}
