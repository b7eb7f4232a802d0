package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const tmpSuffix = ".mirrord.tmp"

// AtomicWrite writes r to dst through a temp file in the same directory, so a
// reader of dst never sees a partial file. The result gets mode and modTime.
func AtomicWrite(fs afero.Fs, dst string, r io.Reader, mode os.FileMode, modTime time.Time) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + tmpSuffix
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// OpenFile is subject to the umask
	if err := fs.Chmod(tmp, mode.Perm()); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to set mode: %w", err)
	}

	if err := fs.Chtimes(tmp, modTime, modTime); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to set times: %w", err)
	}

	if err := fs.Rename(tmp, dst); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

// RemoveIfExists removes path and, for a directory, everything below it.
// Directories the owner cannot write to are opened up first.
func RemoveIfExists(fs afero.Fs, path string) error {
	if _, err := lstat(fs, path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := fs.RemoveAll(path); err == nil {
		return nil
	}

	// Walk visits a directory before reading it, so its mode is fixed in time
	_ = afero.Walk(fs, path, func(p string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && info.Mode().Perm()&0700 != 0700 {
			_ = fs.Chmod(p, info.Mode().Perm()|0700)
		}
		return nil
	})

	if err := fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}

	return fs.Stat(path)
}

func Exists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}
