package fid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nmrfx/fidio/internal/testutil"
)

func openRS2DFixture(t *testing.T, params map[string][]string, rows [][]float64, opts ...Option) *Data {
	t.Helper()
	dir := testutil.WriteRS2D(t, filepath.Join(t.TempDir(), "exp1"), params, rows)
	d, err := Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestGeometry_ProtonScenario(t *testing.T) {
	d := openRS2DFixture(t, testutil.RS2DParams(2048), testutil.Ramp(1, 4096))
	g := d.Geometry()

	require.Equal(t, 1, g.NDim())
	assert.Equal(t, 2048, g.Size(0))
	assert.True(t, g.IsComplex(0))
	assert.Equal(t, "ft", g.FTType(0))
	assert.InDelta(t, 5000.0, g.SW(0), 1e-9)
	assert.InDelta(t, (500130000.0+1200.0)/1e6, g.SF(0), 1e-9)
	assert.InDelta(t, 1200.0/500.13, g.Ref(0), 1e-9)
	assert.Equal(t, "1H", g.Nucleus(0))
	assert.Equal(t, 1.0, g.RefPoint(0))

	ph0, ph1 := g.Phases(0)
	assert.Equal(t, 12.5, ph0)
	assert.Equal(t, -3.0, ph1)

	assert.Equal(t, 1, d.NVectors())
	assert.Equal(t, FormatRS2D, d.Kind())
}

func TestGeometry_SetResetLeavesHeaderUntouched(t *testing.T) {
	d := openRS2DFixture(t, testutil.RS2DParams(64), testutil.Ramp(1, 128))
	g := d.Geometry()

	g.SetSWString(0, "10ppm")
	assert.InDelta(t, 10*g.SF(0), g.SW(0), 1e-9)

	g.SetSWString(0, "2500")
	assert.Equal(t, 2500.0, g.SW(0))

	g.SetSWString(0, "wide")
	assert.Equal(t, 5000.0, g.SW(0))

	g.SetSW(0, 1234)
	g.ResetSW(0)
	assert.Equal(t, 5000.0, g.SW(0))

	g.SetSF(0, 400)
	g.SetNucleus(0, "13C")
	g.SetSize(0, 32)
	g.SetComplex(0, false)
	assert.Equal(t, 400.0, g.SF(0))
	assert.Equal(t, "13C", g.Nucleus(0))
	assert.Equal(t, 32, g.Size(0))
	assert.Equal(t, "rft", g.FTType(0))

	g.ResetSF(0)
	g.ResetNucleus(0)
	g.ResetSize(0)
	g.ResetComplex(0)
	assert.InDelta(t, 500.1312, g.SF(0), 1e-9)
	assert.Equal(t, "1H", g.Nucleus(0))
	assert.Equal(t, 64, g.Size(0))
	assert.True(t, g.IsComplex(0))

	sw, _ := d.Header().Get("SPECTRAL_WIDTH")
	assert.Equal(t, "5000.0", sw)
	base, _ := d.Header().Get("BASE_FREQ_1")
	assert.Equal(t, "500130000", base)
}

func TestGeometry_RefStrings(t *testing.T) {
	d := openRS2DFixture(t, testutil.RS2DParams2D(16, 8, ModeStates), testutil.Ramp(8, 32))
	g := d.Geometry()

	g.SetRefString(0, "H2O")
	assert.InDelta(t, WaterShift(298.15), g.Ref(0), 1e-9)

	g.SetRefString(0, "4.5ppm")
	assert.Equal(t, 4.5, g.Ref(0))

	g.SetRefString(0, "")
	assert.InDelta(t, 1200.0/500.13, g.Ref(0), 1e-9)

	g.SetRefString(1, "AUTO")
	r13, _ := NucleusRatio("13C")
	zero := g.SF0(0) * r13
	assert.InDelta(t, (g.SF(1)-zero)/zero*1e6, g.Ref(1), 1e-6)

	g.SetRefString(1, "autozero")
	zero = g.SF(0) * r13
	assert.InDelta(t, (g.SF(1)-zero)/zero*1e6, g.Ref(1), 1e-6)

	g.ResetRef(1)
	assert.Equal(t, 0.0, g.Ref(1))
}

func TestGeometry_IndirectModes(t *testing.T) {
	tests := []struct {
		mode     string
		size     int
		complex  bool
		symbolic string
	}{
		{"STATES", 4, true, "hyper"},
		{"states-tppi", 4, true, "hyper-r"},
		{"Echo Antiecho", 4, true, "echo-antiecho"},
		{"TPPI", 8, false, "real"},
		{"REAL", 8, false, "real"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			d := openRS2DFixture(t, testutil.RS2DParams2D(16, 8, tt.mode), testutil.Ramp(8, 32))
			g := d.Geometry()

			require.Equal(t, 2, g.NDim())
			assert.Equal(t, tt.size, g.Size(1))
			assert.Equal(t, tt.complex, g.IsComplex(1))
			assert.Equal(t, tt.symbolic, g.PhaseMod(1).Symbolic)
			assert.Equal(t, 8, d.NVectors())
		})
	}
}

func TestGeometry_UnknownModeWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := openRS2DFixture(t, testutil.RS2DParams2D(16, 8, "SHUFFLED"), testutil.Ramp(8, 32), WithLogger(zap.New(core)))

	pm := d.Geometry().PhaseMod(1)
	assert.Equal(t, ModeStates, pm.Mode)
	assert.Equal(t, 1, logs.FilterMessage("unknown acquisition mode, assuming STATES").Len())
}

func TestGeometry_MissingParameterDefaults(t *testing.T) {
	params := testutil.RS2DParams(32)
	delete(params, "SPECTRAL_WIDTH")
	delete(params, "OBSERVED_NUCLEUS")

	core, logs := observer.New(zapcore.WarnLevel)
	d := openRS2DFixture(t, params, testutil.Ramp(1, 64), WithLogger(zap.New(core)))
	g := d.Geometry()

	assert.Equal(t, 1.0, g.SW(0))
	assert.Equal(t, "", g.Nucleus(0))

	missing := logs.FilterMessage("missing acquisition parameter, using default").All()
	require.Len(t, missing, 2)
	params0 := missing[0].ContextMap()["param"]
	assert.Equal(t, "SW", params0)
}

func TestGeometry_OutOfRangeDim(t *testing.T) {
	d := openRS2DFixture(t, testutil.RS2DParams(32), testutil.Ramp(1, 64))
	g := d.Geometry()

	assert.Equal(t, 0, g.Size(3))
	assert.False(t, g.IsComplex(-1))
	assert.Equal(t, "", g.Nucleus(5))
	g.SetSW(7, 100)
	assert.Equal(t, 1.0, g.SW(7))
}

func TestGeometry_Descriptor(t *testing.T) {
	d := openRS2DFixture(t, testutil.RS2DParams2D(16, 8, ModeStates), testutil.Ramp(8, 32))

	desc := d.Geometry().Descriptor(1)
	assert.Equal(t, 1, desc.Dim)
	assert.Equal(t, 4, desc.Size)
	assert.Equal(t, "13C", desc.Nucleus)
	assert.Equal(t, 20000.0, desc.SW)
	assert.InDelta(t, 125.757, desc.SF, 1e-9)
	assert.Contains(t, desc.String(), "dim 1: 4c")
}

func TestNucleusRatio_Aliases(t *testing.T) {
	for _, n := range []string{"13C", "C13", "c13", " 13c "} {
		r, ok := NucleusRatio(n)
		require.True(t, ok, n)
		assert.InDelta(t, 0.251449530, r, 1e-12, n)
	}
	_, ok := NucleusRatio("99Xx")
	assert.False(t, ok)
}
