package fid

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// closer returns a function that closes c, discarding the error.
// Use with defer for cleanup-only io.Closer values where the
// error is intentionally ignored (e.g., read-only files).
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// renameInto writes data to a temp file in dir and renames it over path.
func renameInto(dir, path string, data []byte) error {
	return renameIntoFunc(dir, path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// renameIntoFunc streams fill into a temp file in dir and renames it over
// path. The temp file is removed on any failure.
func renameIntoFunc(dir, path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, ".fid-replace-*")
	if err != nil {
		return fmt.Errorf("fid: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	if err := fill(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
