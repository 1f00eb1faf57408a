package fid

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmrfx/fidio/internal/testutil"
)

func TestReadSchedule(t *testing.T) {
	s, err := ReadSchedule(strings.NewReader("# two indirect dims\n0 0\n\n3 1\n1 2\n0 0\n"))
	require.NoError(t, err)

	assert.Equal(t, []int{4, 3}, s.Dims())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, [][]int{{0, 0}, {3, 1}, {1, 2}}, s.Points())

	pos, ok := s.Position([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	assert.True(t, s.Contains([]int{3, 1}))
	assert.False(t, s.Contains([]int{2, 2}))
	assert.False(t, s.Contains([]int{9, 0}))
	assert.InDelta(t, 3.0/12, s.Fraction(), 1e-12)
}

func TestSchedule_PositionFollowsAcquisitionOrder(t *testing.T) {
	s, err := ReadSchedule(strings.NewReader("7\n2\n5\n0\n2\n"))
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())

	for want, c := range []int{7, 2, 5, 0} {
		pos, ok := s.Position([]int{c})
		require.True(t, ok, c)
		assert.Equal(t, want, pos, c)
	}
	_, ok := s.Position([]int{3})
	assert.False(t, ok)
	assert.InDelta(t, 4.0/8, s.Fraction(), 1e-12)
}

func TestReadSchedule_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":       "# nothing\n",
		"negative":    "0\n-1\n",
		"not int":     "0\nx\n",
		"mixed arity": "0 1\n2\n",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSchedule(strings.NewReader(text))
			assert.Error(t, err)
		})
	}
}

func TestSchedule_WriteToRoundTrip(t *testing.T) {
	s, err := ReadSchedule(strings.NewReader("0 0\n3 1\n1 2\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "0 0\n3 1\n1 2\n", buf.String())

	path := filepath.Join(t.TempDir(), ScheduleFile)
	require.NoError(t, ReplaceFile(path, buf.Bytes()))
	again, err := LoadSchedule(path)
	require.NoError(t, err)
	assert.Equal(t, s.Points(), again.Points())
}

func TestZeroFillSchedule(t *testing.T) {
	s, err := ZeroFillSchedule([]int{4, 3}, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, s.Points())
	assert.InDelta(t, 4.0/12, s.Fraction(), 1e-12)

	_, err = ZeroFillSchedule([]int{4}, []int{5})
	assert.Error(t, err)
	_, err = ZeroFillSchedule([]int{4}, []int{1, 1})
	assert.Error(t, err)

	u, err := UniformSchedule([]int{3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, u.Fraction())
}

func TestPoissonGapSchedule(t *testing.T) {
	s, err := PoissonGapSchedule(128, 32, 7)
	require.NoError(t, err)
	assert.Equal(t, 32, s.Len())
	assert.Equal(t, []int{128}, s.Dims())
	assert.True(t, s.Contains([]int{0}))

	pts := s.Points()
	for i := 1; i < len(pts); i++ {
		assert.Greater(t, pts[i][0], pts[i-1][0])
	}

	again, err := PoissonGapSchedule(128, 32, 7)
	require.NoError(t, err)
	assert.Equal(t, pts, again.Points())

	full, err := PoissonGapSchedule(16, 16, 1)
	require.NoError(t, err)
	assert.Equal(t, 16, full.Len())

	_, err = PoissonGapSchedule(16, 0, 1)
	assert.Error(t, err)
}

func TestLoadSchedule_UnreadableFileIgnoredOnOpen(t *testing.T) {
	dir := testutil.WriteRS2D(t, filepath.Join(t.TempDir(), "exp1"), testutil.RS2DParams2D(16, 8, ModeStates), testutil.Ramp(8, 32))
	require.NoError(t, ReplaceFile(filepath.Join(dir, ScheduleFile), []byte("garbage\n")))

	d, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	assert.Nil(t, d.Schedule())
}
