package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nmrfx/fidio/fid"
	"github.com/nmrfx/fidio/internal/testutil"
)

// buildTree writes three readable raw datasets, one processed RS2D
// directory and several datasets that must be skipped.
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	exp1 := testutil.WriteRS2D(t, filepath.Join(root, "lab", "exp1"), testutil.RS2DParams(64), testutil.Ramp(1, 128))
	testutil.WriteRS2D(t, filepath.Join(exp1, "Proc", "0"), testutil.RS2DParams(64), testutil.Ramp(1, 128))
	testutil.WriteRS2D(t, filepath.Join(root, "lab", "exp2"), testutil.RS2DParams2D(16, 8, fid.ModeStates), testutil.Ramp(8, 32))
	testutil.WriteBruker(t, filepath.Join(root, "bruker", "10"), testutil.BrukerParams(16), make([]int32, 16))

	testutil.WriteCorruptRS2D(t, filepath.Join(root, "bad", "corrupt"))
	testutil.WriteHeaderlessRS2D(t, filepath.Join(root, "bad", "headerless"))
	varian := filepath.Join(root, "varian", "proton.fid")
	require.NoError(t, os.MkdirAll(varian, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(varian, "fid"), make([]byte, 32), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(varian, "procpar"), []byte("sw 1 1 1 1 1 1 1\n"), 0o644))
	return root
}

func paths(sums []*Summary) []string {
	out := make([]string, len(sums))
	for i, s := range sums {
		out[i] = s.Path
	}
	return out
}

func find(t *testing.T, sums []*Summary, path string) *Summary {
	t.Helper()
	for _, s := range sums {
		if s.Path == path {
			return s
		}
	}
	require.Failf(t, "summary not found", "path %s", path)
	return nil
}

// -----------------------------------------------------------------------------
// Scan
// -----------------------------------------------------------------------------

func TestIndexer_Scan(t *testing.T) {
	root := buildTree(t)
	core, logs := observer.New(zap.WarnLevel)
	ix := New(WithLogger(zap.New(core)), WithConcurrency(2))

	sums, err := ix.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"bruker/10", "lab/exp1", "lab/exp2"}, paths(sums))

	exp1 := find(t, sums, "lab/exp1")
	assert.Equal(t, "rs2d", exp1.Vendor)
	assert.Equal(t, fid.FormatRS2D.String(), exp1.Type)
	assert.Equal(t, 1, exp1.NDim)
	assert.Equal(t, 1, exp1.NVectors)
	assert.Equal(t, "1H", exp1.Nucleus)
	assert.Equal(t, "zg30", exp1.Sequence)
	assert.Equal(t, "nmr", exp1.User)
	assert.Equal(t, "proton", exp1.Title)
	assert.InDelta(t, 500.1312, exp1.SF, 1e-9)
	assert.True(t, exp1.Present)
	assert.Equal(t, []string{"Proc/0"}, exp1.Processed)
	assert.Equal(t, "Proc/0", exp1.SelectedProcessedData())

	exp2 := find(t, sums, "lab/exp2")
	assert.Equal(t, 2, exp2.NDim)
	assert.Equal(t, 8, exp2.NVectors)
	assert.Equal(t, "1H,13C", exp2.Isotopes)
	assert.Empty(t, exp2.Processed)

	bruker := find(t, sums, "bruker/10")
	assert.Equal(t, "bruker", bruker.Vendor)
	assert.Equal(t, "zg30", bruker.Sequence)

	keys := map[string]bool{}
	for _, s := range sums {
		assert.NotEmpty(t, s.HashKey)
		keys[s.HashKey] = true
	}
	assert.Len(t, keys, 3)

	skipped := logs.FilterMessage("skipping dataset").All()
	assert.GreaterOrEqual(t, len(skipped), 2)
	var corrupt bool
	for _, e := range skipped {
		if e.ContextMap()["path"] == filepath.Join(root, "bad", "corrupt") {
			corrupt = true
		}
	}
	assert.True(t, corrupt)
}

func TestIndexer_Scan_Errors(t *testing.T) {
	ix := New()

	_, err := ix.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.Scan(ctx, buildTree(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexer_Scan_ResultsAreIndependent(t *testing.T) {
	root := buildTree(t)
	ix := New()

	var wg sync.WaitGroup
	results := make([][]*Summary, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sums, err := ix.Scan(context.Background(), root)
			assert.NoError(t, err)
			results[i] = sums
		}()
	}
	wg.Wait()

	for _, sums := range results {
		require.Len(t, sums, 3)
	}
	results[0][1].Title = "changed"
	results[0][1].Processed[0] = "changed"
	assert.Equal(t, "proton", results[1][1].Title)
	assert.Equal(t, "Proc/0", results[1][1].Processed[0])
}

func TestIndexer_ScanAsync(t *testing.T) {
	root := buildTree(t)
	done := make(chan []*Summary, 1)
	New().ScanAsync(context.Background(), root, func(sums []*Summary, err error) {
		assert.NoError(t, err)
		done <- sums
	})
	assert.Len(t, <-done, 3)
}

// -----------------------------------------------------------------------------
// Sidecar round trip
// -----------------------------------------------------------------------------

func TestIndexer_LoadOrScan(t *testing.T) {
	ctx := context.Background()
	root := buildTree(t)
	ix := New()

	// No sidecar: scan and save.
	sums, err := ix.LoadOrScan(ctx, root)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	_, err = os.Stat(filepath.Join(root, SidecarFile))
	require.NoError(t, err)

	// A removed dataset stays in the index but is no longer present.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "lab", "exp2")))
	sums, err = ix.LoadOrScan(ctx, root)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.False(t, find(t, sums, "lab/exp2").Present)
	exp1 := find(t, sums, "lab/exp1")
	assert.True(t, exp1.Present)
	assert.Equal(t, []string{"Proc/0"}, exp1.Processed)
}

func TestIndexer_LoadOrScan_CorruptSidecarRescans(t *testing.T) {
	root := buildTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, SidecarFile), []byte("{not json"), 0o644))
	core, logs := observer.New(zap.WarnLevel)

	sums, err := New(WithLogger(zap.New(core))).LoadOrScan(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, sums, 3)
	assert.Equal(t, 1, logs.FilterMessage("unreadable index, rescanning").Len())

	again, err := Load(root)
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestRefresh(t *testing.T) {
	root := buildTree(t)
	sums := []*Summary{
		{Path: "lab/exp1", Title: "proton"},
		{Path: "lab/missing"},
		{Path: "lab", Processed: []string{"stale"}},
	}
	Refresh(root, sums)

	assert.True(t, sums[0].Present)
	assert.Equal(t, []string{"Proc/0"}, sums[0].Processed)
	assert.False(t, sums[1].Present)
	assert.False(t, sums[2].Present)
	assert.Nil(t, sums[2].Processed)
}
