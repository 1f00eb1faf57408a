package fid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmrfx/fidio/internal/testutil"
)

func TestDetect_RS2D_EquivalentPaths(t *testing.T) {
	dir := testutil.WriteRS2D(t, filepath.Join(t.TempDir(), "exp1"), testutil.RS2DParams(8), testutil.Ramp(1, 16))

	for _, path := range []string{
		dir,
		filepath.Join(dir, "header.xml"),
		filepath.Join(dir, "data.dat"),
		filepath.Join(dir, "not-there"),
	} {
		det, err := Detect(path)
		require.NoError(t, err, path)
		assert.Equal(t, FormatRS2D, det.Kind, path)
		assert.Equal(t, dir, det.Path, path)
	}
}

func TestDetect_RS2DProc_BeforeRaw(t *testing.T) {
	dir := testutil.WriteRS2D(t, filepath.Join(t.TempDir(), "exp1"), testutil.RS2DParams(8), testutil.Ramp(1, 16))
	proc := testutil.WriteRS2D(t, filepath.Join(dir, "Proc", "3"), testutil.RS2DParams(8), testutil.Ramp(1, 16))

	det, err := Detect(proc)
	require.NoError(t, err)
	assert.Equal(t, FormatRS2DProc, det.Kind)
	assert.Equal(t, proc, det.Path)

	det, err = Detect(filepath.Join(proc, "data.dat"))
	require.NoError(t, err)
	assert.Equal(t, FormatRS2DProc, det.Kind)

	// A data.dat under a non-numeric child of Proc is plain RS2D.
	other := testutil.WriteRS2D(t, filepath.Join(dir, "Proc", "draft"), testutil.RS2DParams(8), testutil.Ramp(1, 16))
	det, err = Detect(other)
	require.NoError(t, err)
	assert.Equal(t, FormatRS2D, det.Kind)
}

func TestDetect_Bruker(t *testing.T) {
	dir := testutil.WriteBruker(t, filepath.Join(t.TempDir(), "sample", "10"), testutil.BrukerParams(16), make([]int32, 16))

	for _, path := range []string{dir, filepath.Join(dir, "acqus"), filepath.Join(dir, "fid")} {
		det, err := Detect(path)
		require.NoError(t, err, path)
		assert.Equal(t, FormatBruker, det.Kind, path)
		assert.Equal(t, dir, det.Path, path)
	}

	pdata := filepath.Join(dir, "pdata", "1")
	testutil.WriteJCAMP(t, filepath.Join(pdata, "procs"), map[string]string{"SI": "16"})
	testutil.Touch(t, filepath.Join(pdata, "1r"), testutil.Epoch)

	det, err := Detect(pdata)
	require.NoError(t, err)
	assert.Equal(t, FormatBrukerProc, det.Kind)
	assert.Equal(t, pdata, det.Path)
}

func TestDetect_Varian(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proton.fid")
	testutil.Touch(t, filepath.Join(dir, "fid"), testutil.Epoch)
	testutil.Touch(t, filepath.Join(dir, "procpar"), testutil.Epoch)

	det, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, FormatVarian, det.Kind)

	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrReadNotSupported)
}

func TestDetect_SingleFileFormats(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		want FormatKind
	}{
		{"spectrum.nv", FormatNV},
		{"params.JDX", FormatJCAMP},
		{"params.dx", FormatJCAMP},
		{"test.fid", FormatNMRPipe},
		{"test.ft2", FormatNMRPipe},
		{"run.jdf", FormatJEOL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, tt.name)
			testutil.Touch(t, path, testutil.Epoch)

			det, err := Detect(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, det.Kind)
			assert.Equal(t, path, det.Path)
		})
	}
}

func TestDetect_NotRecognized(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	for _, path := range []string{root, filepath.Join(root, "notes.txt"), filepath.Join(root, "missing")} {
		_, err := Detect(path)
		assert.True(t, errors.Is(err, ErrFormatNotRecognized), path)
	}
}

func TestOpenHeader_JCAMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acq.jdx")
	testutil.WriteJCAMP(t, path, testutil.BrukerParams(64))

	h, det, err := OpenHeader(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJCAMP, det.Kind)

	td, ok := h.Int("TD")
	require.True(t, ok)
	assert.Equal(t, 64, td)

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrReadNotSupported)
}

func TestOpen_MissingHeader(t *testing.T) {
	dir := testutil.WriteHeaderlessRS2D(t, filepath.Join(t.TempDir(), "exp1"))

	det, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, FormatRS2D, det.Kind)

	_, err = Open(dir)
	var hpe *HeaderParseError
	require.ErrorAs(t, err, &hpe)
	assert.Equal(t, filepath.Join(dir, "header.xml"), hpe.Path)
	assert.ErrorIs(t, err, ErrHeaderParse)
}

func TestOpen_CorruptHeader(t *testing.T) {
	dir := testutil.WriteCorruptRS2D(t, filepath.Join(t.TempDir(), "exp1"))

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrHeaderParse)
}

func TestSupports(t *testing.T) {
	tests := []struct {
		kind                FormatKind
		header, read, write bool
	}{
		{FormatRS2D, true, true, true},
		{FormatRS2DProc, true, true, true},
		{FormatBruker, true, true, false},
		{FormatBrukerProc, true, false, false},
		{FormatJCAMP, true, false, false},
		{FormatVarian, false, false, false},
		{FormatNV, false, false, false},
		{FormatUnknown, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			header, read, write := Supports(tt.kind)
			assert.Equal(t, tt.header, header, "header")
			assert.Equal(t, tt.read, read, "read")
			assert.Equal(t, tt.write, write, "write")
		})
	}
}

func TestFormatKind_Vendor(t *testing.T) {
	assert.Equal(t, "rs2d", FormatRS2DProc.Vendor())
	assert.Equal(t, "bruker", FormatBruker.Vendor())
	assert.Equal(t, "nmrfx", FormatNV.Vendor())
	assert.Equal(t, "varian", FormatVarian.Vendor())
	assert.True(t, FormatBrukerProc.Processed())
	assert.False(t, FormatRS2D.Processed())
	assert.Equal(t, "FormatKind(42)", FormatKind(42).String())
}
