//go:build unix

package fid

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ReplaceFile atomically replaces the content of path with data.
//
// Writers serialize on flock advisory locking of a companion .lock file;
// the new content lands via temp-file + rename so concurrent readers see
// either the old or the new file, never a partial one.
func ReplaceFile(path string, data []byte) error {
	return replaceLocked(path, func(dir string) error {
		return renameInto(dir, path, data)
	})
}

// ReplaceFileFunc is ReplaceFile for content produced by a streaming fill.
func ReplaceFileFunc(path string, fill func(io.Writer) error) error {
	return replaceLocked(path, func(dir string) error {
		return renameIntoFunc(dir, path, fill)
	})
}

func replaceLocked(path string, write func(dir string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("fid: open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("fid: flock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return write(dir)
}
