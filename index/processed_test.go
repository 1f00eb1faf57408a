package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmrfx/fidio/internal/testutil"
)

func TestFindProcessed_NewestFirst(t *testing.T) {
	lab := t.TempDir()
	dir := filepath.Join(lab, "exp1")

	for _, id := range []string{"0", "2", "draft"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "Proc", id), 0o755))
		testutil.WriteSamples(t, filepath.Join(dir, "Proc", id, "data.dat"), binary.BigEndian, testutil.Ramp(1, 4))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Proc", "5"), 0o755))
	testutil.WriteJCAMP(t, filepath.Join(dir, "pdata", "1", "procs"), map[string]string{"SI": "1024"})

	at := func(d time.Duration) time.Time { return testutil.Epoch.Add(d) }
	testutil.Touch(t, filepath.Join(lab, "exp1.nv"), at(time.Hour))
	testutil.Touch(t, filepath.Join(lab, "exp1_proc.nv"), at(3*time.Hour))
	testutil.Touch(t, filepath.Join(lab, "exp10.nv"), at(4*time.Hour))
	testutil.Touch(t, filepath.Join(dir, "Proton_1D.NV"), at(30*time.Minute))
	testutil.Touch(t, filepath.Join(dir, "other.nv"), at(5*time.Hour))
	testutil.Touch(t, filepath.Join(dir, "Proc", "0"), at(0))
	testutil.Touch(t, filepath.Join(dir, "Proc", "2"), at(2*time.Hour))
	testutil.Touch(t, filepath.Join(dir, "pdata", "1"), at(-time.Hour))

	got := findProcessed(dir, "Proton 1D")
	assert.Equal(t, []string{
		"../exp1_proc.nv",
		"Proc/2",
		"../exp1.nv",
		"Proton_1D.NV",
		"Proc/0",
		"pdata/1",
	}, got)
}

func TestFindProcessed_None(t *testing.T) {
	dir := testutil.WriteHeaderlessRS2D(t, filepath.Join(t.TempDir(), "exp1"))
	assert.Empty(t, findProcessed(dir, ""))
}

func TestMatchesAny(t *testing.T) {
	names := matchNames("EXP1", " My Title ")
	assert.Equal(t, []string{"exp1", "my_title"}, names)

	for stem, want := range map[string]bool{
		"exp1":        true,
		"Exp1_ft":     true,
		"exp1.2d":     true,
		"exp10":       false,
		"my_title":    true,
		"my_title_v2": true,
		"title":       false,
		"prefix_exp1": false,
	} {
		assert.Equal(t, want, matchesAny(stem, names), stem)
	}
}
