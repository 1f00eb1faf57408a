package fid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidPath indicates an archive key that is empty or would escape
// the archive root.
var ErrInvalidPath = errors.New("fid: invalid archive key")

// CleanKey normalizes an object key to a slash-separated path below the
// archive root. Store implementations share it so that every backend
// accepts the same keys.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidPath
	}
	cleaned := strings.TrimPrefix(path.Clean(filepath.ToSlash(key)), "/")
	if cleaned == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// CleanPrefix normalizes a list prefix. A trailing slash is kept so that
// "exp1/" lists exp1's objects only, not exp10's.
func CleanPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	cleaned := strings.TrimPrefix(path.Clean(filepath.ToSlash(prefix)), "/")
	switch {
	case cleaned == "" || cleaned == ".":
		return "", nil
	case cleaned == ".." || strings.HasPrefix(cleaned, "../"):
		return "", ErrInvalidPath
	}
	if strings.HasSuffix(prefix, "/") {
		cleaned += "/"
	}
	return cleaned, nil
}

// IsScratch reports files the archive writes for its own bookkeeping:
// lock companions and staging files of interrupted writes.
func IsScratch(name string) bool {
	return strings.HasSuffix(name, ".lock") ||
		strings.HasPrefix(name, ".fid-replace-") ||
		strings.HasPrefix(name, ".fid-put-") ||
		strings.HasPrefix(name, ".fetch-")
}

// -----------------------------------------------------------------------------
// Directory archive
// -----------------------------------------------------------------------------

// dirStore keeps archive objects as plain files under root, so a dataset
// archive can be browsed and opened in place.
type dirStore struct {
	root string
}

// NewFS returns a Store over an existing directory. It also implements
// Replacer.
//
// Put is atomic: an object becomes visible only once it is complete, and
// a failed upload leaves nothing behind. Replace serializes writers with
// ReplaceFile.
func NewFS(root string) (Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fid: archive root %s is not a directory: %w", root, os.ErrNotExist)
	}
	return &dirStore{root: filepath.Clean(root)}, nil
}

func (d *dirStore) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(cleaned)), nil
}

func (d *dirStore) Put(_ context.Context, key string, r io.Reader) error {
	full, err := d.resolve(key)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(full); err == nil {
		return ErrPathExists
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".fid-put-*")
	if err != nil {
		return fmt.Errorf("fid: create staging file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Link fails if another writer got there first.
	if err := os.Link(tmpName, full); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrPathExists
		}
		return err
	}
	return nil
}

func (d *dirStore) Replace(_ context.Context, key string, r io.Reader) error {
	full, err := d.resolve(key)
	if err != nil {
		return err
	}
	return ReplaceFileFunc(full, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

func (d *dirStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (d *dirStore) Exists(_ context.Context, key string) (bool, error) {
	full, err := d.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// List walks the smallest directory that can hold matching keys and
// returns them in lexical order.
func (d *dirStore) List(_ context.Context, prefix string) ([]string, error) {
	p, err := CleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	start := d.root
	if dir := path.Dir(p + "x"); dir != "." {
		start = filepath.Join(d.root, filepath.FromSlash(dir))
	}

	var keys []string
	err = filepath.WalkDir(start, func(full string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if IsScratch(e.Name()) && full != start {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, full)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, p) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Delete removes key and any directories it leaves empty. Missing keys
// are not an error.
func (d *dirStore) Delete(_ context.Context, key string) error {
	full, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for dir := filepath.Dir(full); dir != d.root && strings.HasPrefix(dir, d.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Memory archive
// -----------------------------------------------------------------------------

// memoryStore holds objects in a map. Stored slices are never mutated
// after Put or Replace, so readers share them.
type memoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an in-memory Store that also implements Replacer.
// It is safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[k]; ok {
		return ErrPathExists
	}
	m.objects[k] = data
	return nil
}

func (m *memoryStore) Replace(_ context.Context, key string, r io.Reader) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.objects[k] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.objects[k]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	k, err := CleanKey(key)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.objects[k]
	m.mu.RUnlock()
	return ok, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	p, err := CleanPrefix(prefix)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	slices.Sort(keys)
	return keys, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.objects, k)
	m.mu.Unlock()
	return nil
}
