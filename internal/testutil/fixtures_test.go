package testutil

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSamples_ByteOrder(t *testing.T) {
	rows := [][]float64{{1.5, -2}, {3, 0}}
	for name, order := range map[string]binary.AppendByteOrder{
		"big":    binary.BigEndian,
		"little": binary.LittleEndian,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.dat")
			WriteSamples(t, path, order, rows)

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Len(t, raw, 16)

			dec := order.(binary.ByteOrder)
			var got []float64
			for i := 0; i < len(raw); i += 4 {
				got = append(got, float64(math.Float32frombits(dec.Uint32(raw[i:]))))
			}
			assert.Equal(t, []float64{1.5, -2, 3, 0}, got)
		})
	}
}
