package fid

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmrfx/fidio/internal/testutil"
)

// storeFactories runs each test against both Store implementations.
func storeFactories(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{"fs": fs, "memory": NewMemory()}
}

func TestStore_Put_ErrPathExists(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "exp1/header.xml", bytes.NewReader([]byte("a"))))
			err := store.Put(ctx, "exp1/header.xml", bytes.NewReader([]byte("b")))
			assert.ErrorIs(t, err, ErrPathExists)

			rc, err := store.Get(ctx, "exp1/header.xml")
			require.NoError(t, err)
			defer func() { _ = rc.Close() }()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "a", string(got))
		})
	}
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			r, ok := store.(Replacer)
			require.True(t, ok)
			require.NoError(t, r.Replace(ctx, "nmrfx_index.json", bytes.NewReader([]byte("[]"))))
			require.NoError(t, r.Replace(ctx, "nmrfx_index.json", bytes.NewReader([]byte("[{}]"))))

			rc, err := store.Get(ctx, "nmrfx_index.json")
			require.NoError(t, err)
			defer func() { _ = rc.Close() }()
			got, _ := io.ReadAll(rc)
			assert.Equal(t, "[{}]", string(got))
		})
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing/data.dat")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"", ".", "..", "../escape", "a/../../escape"} {
				_, err := store.Get(ctx, p)
				assert.ErrorIs(t, err, ErrInvalidPath, p)
				_, err = store.Exists(ctx, p)
				assert.ErrorIs(t, err, ErrInvalidPath, p)
			}
			_, err := store.List(ctx, "../up")
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestStore_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "exp1/data.dat", bytes.NewReader([]byte{1, 2})))

			ok, err := store.Exists(ctx, "exp1/data.dat")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.Delete(ctx, "exp1/data.dat"))
			require.NoError(t, store.Delete(ctx, "exp1/data.dat"))

			ok, err = store.Exists(ctx, "exp1/data.dat")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_List_PrefixIsDirectory(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"exp1/header.xml", "exp1/Proc/0/data.dat", "exp10/header.xml", "nmrfx_index.json"} {
				require.NoError(t, store.Put(ctx, p, bytes.NewReader([]byte("x"))))
			}

			got, err := store.List(ctx, "exp1/")
			require.NoError(t, err)
			slices.Sort(got)
			assert.Equal(t, []string{"exp1/Proc/0/data.dat", "exp1/header.xml"}, got)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 4)

			none, err := store.List(ctx, "exp2/")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

// failingReader returns some bytes and then an error.
type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset")
	}
	r.sent = true
	return copy(p, "partial"), nil
}

func TestFS_FailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFS(root)
	require.NoError(t, err)

	err = store.Put(ctx, "exp1/data.dat", &failingReader{})
	require.Error(t, err)

	ok, err := store.Exists(ctx, "exp1/data.dat")
	require.NoError(t, err)
	assert.False(t, ok)
	entries, err := os.ReadDir(filepath.Join(root, "exp1"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Put(ctx, "exp1/data.dat", bytes.NewReader([]byte("full"))))
}

func TestFS_ListSkipsScratchAndDeletePrunes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFS(root)
	require.NoError(t, err)

	r := store.(Replacer)
	require.NoError(t, r.Replace(ctx, "lab/exp1/header.xml", bytes.NewReader([]byte("<header/>"))))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lab", ".fetch-1"), 0o755))
	testutil.Touch(t, filepath.Join(root, "lab", ".fetch-1", "data.dat"), testutil.Epoch)

	keys, err := store.List(ctx, "lab/")
	require.NoError(t, err)
	assert.Equal(t, []string{"lab/exp1/header.xml"}, keys)

	require.NoError(t, os.Remove(filepath.Join(root, "lab", "exp1", "header.xml.lock")))
	require.NoError(t, store.Delete(ctx, "lab/exp1/header.xml"))
	_, err = os.Stat(filepath.Join(root, "lab", "exp1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "lab"))
	assert.NoError(t, err)
}

func TestCleanKey(t *testing.T) {
	for in, want := range map[string]string{
		"exp1/header.xml":  "exp1/header.xml",
		"/exp1//data.dat":  "exp1/data.dat",
		"exp1/./Proc/../x": "exp1/x",
	} {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	p, err := CleanPrefix("lab/exp1/")
	require.NoError(t, err)
	assert.Equal(t, "lab/exp1/", p)
	p, err = CleanPrefix("./")
	require.NoError(t, err)
	assert.Equal(t, "", p)
}

func TestNewFS_RequiresDirectory(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewFS(file)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplaceFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "header.xml")
	require.NoError(t, ReplaceFile(path, []byte("one")))
	require.NoError(t, ReplaceFileFunc(path, func(w io.Writer) error {
		_, err := w.Write([]byte("two"))
		return err
	}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"header.xml", "header.xml.lock"}, names)
}

func TestCompressorFor(t *testing.T) {
	tests := []struct {
		name, comp, stripped string
	}{
		{"data.dat.zst", "zstd", "data.dat"},
		{"header.xml.gz", "gzip", "header.xml"},
		{"nmrfx_index.json.lz4", "lz4", "nmrfx_index.json"},
		{"data.dat", "noop", "data.dat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, stripped := CompressorFor(tt.name)
			assert.Equal(t, tt.comp, c.Name())
			assert.Equal(t, tt.stripped, stripped)

			var buf bytes.Buffer
			w, err := c.Compress(&buf)
			require.NoError(t, err)
			_, err = w.Write([]byte("payload payload payload"))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := c.Decompress(&buf)
			require.NoError(t, err)
			defer func() { _ = r.Close() }()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "payload payload payload", string(got))
		})
	}
}

func TestCompressorNamed(t *testing.T) {
	for _, name := range []string{"zstd", "gzip", "lz4"} {
		c, err := CompressorNamed(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	c, err := CompressorNamed("none")
	require.NoError(t, err)
	assert.Equal(t, "noop", c.Name())
	_, err = CompressorNamed("brotli")
	assert.Error(t, err)
}
