package index

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmrfx/fidio/fid"
	fids3 "github.com/nmrfx/fidio/fid/s3"
	"github.com/nmrfx/fidio/internal/testutil"
)

// publishTree scans a local tree and publishes every dataset and the
// index to store.
func publishTree(t *testing.T, store fid.Store, comp fid.Compressor) (string, []*Summary) {
	t.Helper()
	ctx := context.Background()
	src := t.TempDir()
	exp1 := testutil.WriteRS2D(t, filepath.Join(src, "lab", "exp1"), testutil.RS2DParams(64), testutil.Ramp(1, 128))
	testutil.WriteRS2D(t, filepath.Join(exp1, "Proc", "0"), testutil.RS2DParams(64), testutil.Ramp(1, 128))
	testutil.WriteRS2D(t, filepath.Join(src, "lab", "exp2"), testutil.RS2DParams2D(16, 8, fid.ModeStates), testutil.Ramp(8, 32))

	sums, err := New().ScanAndSave(ctx, src)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	remote := NewRemote(store)
	for _, s := range sums {
		n, err := remote.Publish(ctx, s, src, comp)
		require.NoError(t, err)
		assert.Positive(t, n)
	}
	require.NoError(t, remote.PublishIndex(ctx, sums, comp))
	return src, sums
}

func assertSameFile(t *testing.T, want, got string) {
	t.Helper()
	a, err := os.ReadFile(want)
	require.NoError(t, err)
	b, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, a, b, got)
}

func TestRemote_PublishAndFetch(t *testing.T) {
	for _, comp := range []fid.Compressor{fid.NewZstdCompressor(), fid.NewGzipCompressor(), fid.NewLZ4Compressor(), fid.NewNoOpCompressor()} {
		t.Run(comp.Name(), func(t *testing.T) {
			ctx := context.Background()
			store := fid.NewMemory()
			src, _ := publishTree(t, store, comp)

			ok, err := store.Exists(ctx, "lab/exp1/data.dat"+comp.Extension())
			require.NoError(t, err)
			assert.True(t, ok)

			remote := NewRemote(store, WithFetchRate(1000))
			sums, err := remote.LoadIndex(ctx)
			require.NoError(t, err)
			require.Len(t, sums, 2)

			local := t.TempDir()
			remote.SyncPresence(local, sums)
			exp1 := sums[0]
			require.Equal(t, "lab/exp1", exp1.Path)
			assert.False(t, exp1.Present)

			require.NoError(t, remote.Fetch(ctx, exp1, local))
			assert.True(t, exp1.Present)
			assert.Equal(t, []string{"Proc/0"}, exp1.Processed)
			for _, rel := range []string{"header.xml", "data.dat", "Proc/0/data.dat"} {
				assertSameFile(t,
					filepath.Join(src, "lab", "exp1", filepath.FromSlash(rel)),
					filepath.Join(local, "lab", "exp1", filepath.FromSlash(rel)))
			}

			data, err := fid.Open(filepath.Join(local, "lab", "exp1"))
			require.NoError(t, err)
			assert.Equal(t, 1, data.NVectors())
			require.NoError(t, data.Close())

			// Present datasets are not fetched again.
			require.NoError(t, remote.Fetch(ctx, exp1, local))
		})
	}
}

func TestRemote_PublishKeepsExistingObjects(t *testing.T) {
	ctx := context.Background()
	store := fid.NewMemory()
	src, sums := publishTree(t, store, fid.NewZstdCompressor())

	n, err := NewRemote(store).Publish(ctx, sums[0], src, fid.NewZstdCompressor())
	require.NoError(t, err)
	assert.Zero(t, n)

	keys, err := store.List(ctx, "lab/exp1/")
	require.NoError(t, err)
	for _, k := range keys {
		assert.True(t, strings.HasSuffix(k, ".zst"), k)
	}
}

func TestRemote_PublishIndexReplacesOtherCompressions(t *testing.T) {
	ctx := context.Background()
	store := fid.NewMemory()
	remote := NewRemote(store)
	sums := sampleSummaries()

	require.NoError(t, remote.PublishIndex(ctx, sums, fid.NewGzipCompressor()))
	require.NoError(t, remote.PublishIndex(ctx, sums[:1], fid.NewNoOpCompressor()))

	gz, err := store.Exists(ctx, SidecarFile+".gz")
	require.NoError(t, err)
	assert.False(t, gz)

	got, err := remote.LoadIndex(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sums[0].Export(), got[0].Export())
}

// readOnlyStore hides the Replacer of the wrapped store.
type readOnlyStore struct{ fid.Store }

func TestRemote_PublishIndexNeedsReplacer(t *testing.T) {
	err := NewRemote(readOnlyStore{fid.NewMemory()}).PublishIndex(context.Background(), nil, fid.NewNoOpCompressor())
	assert.Error(t, err)
}

func TestRemote_LoadIndexEmptyArchive(t *testing.T) {
	sums, err := NewRemote(fid.NewMemory()).LoadIndex(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, sums)
}

func TestRemote_LoadIndexCorrupt(t *testing.T) {
	ctx := context.Background()
	store := fid.NewMemory()
	require.NoError(t, store.Put(ctx, SidecarFile+".zst", bytes.NewReader([]byte("plain text"))))

	_, err := NewRemote(store).LoadIndex(ctx)
	var rte *fid.RemoteTransferError
	require.ErrorAs(t, err, &rte)
	assert.Equal(t, SidecarFile+".zst", rte.Key)
}

func TestRemote_FetchFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	mock := fids3.NewMockS3Client()
	store, err := fids3.New(mock, fids3.Config{Bucket: "archive", Prefix: "nmr"})
	require.NoError(t, err)
	_, sums := publishTree(t, store, fid.NewZstdCompressor())

	remote := NewRemote(store)
	loaded, err := remote.LoadIndex(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	mock.GetObjectFail = "data.dat"
	local := t.TempDir()
	err = remote.Fetch(ctx, loaded[0], local)
	assert.ErrorIs(t, err, fid.ErrRemoteTransfer)
	assert.False(t, loaded[0].Present)

	entries, err := os.ReadDir(filepath.Join(local, "lab"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Unknown datasets report not found.
	missing := &Summary{Path: "lab/exp9"}
	err = remote.Fetch(ctx, missing, local)
	assert.ErrorIs(t, err, fid.ErrNotFound)
	assert.Equal(t, sums[0].Path, loaded[0].Path)
}

func TestRemote_FetchCanceled(t *testing.T) {
	store := fid.NewMemory()
	publishTree(t, store, fid.NewNoOpCompressor())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	local := t.TempDir()
	err := NewRemote(store, WithFetchRate(5)).Fetch(ctx, &Summary{Path: "lab/exp1"}, local)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	_, statErr := os.Stat(filepath.Join(local, "lab", "exp1"))
	assert.True(t, os.IsNotExist(statErr))
}
