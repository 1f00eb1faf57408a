//go:build !unix

package fid

import (
	"io"
	"os"
	"path/filepath"
	"sync"
)

var replaceMu sync.Mutex

// ReplaceFile atomically replaces the content of path with data.
//
// Without flock, writers within this process serialize on a mutex; the
// temp-file + rename still keeps readers from observing a partial file.
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

	replaceMu.Lock()
	defer replaceMu.Unlock()

	return write(dir)
}
