package fid

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MaxDims is the largest supported dimensionality.
const MaxDims = 4

// -----------------------------------------------------------------------------
// Tri-state fields
// -----------------------------------------------------------------------------

type option[T any] struct {
	v  T
	ok bool
}

func some[T any](v T) option[T] { return option[T]{v: v, ok: true} }

// field holds one per-dimension value in one of three states: overridden
// by a setter, cached from the header, or neither.
type field[T any] struct {
	override option[T]
	cached   option[T]
}

func (f *field[T]) get(derive func() T) T {
	if f.override.ok {
		return f.override.v
	}
	if !f.cached.ok {
		f.cached = some(derive())
	}
	return f.cached.v
}

func (f *field[T]) set(v T) { f.override = some(v) }

func (f *field[T]) reset() { *f = field[T]{} }

// -----------------------------------------------------------------------------
// Vendor acquisition parameters
// -----------------------------------------------------------------------------

// acquisition derives raw per-dimension facts from a vendor header. The
// ok results report whether the vendor parameter was present; Geometry
// supplies defaults and logs the miss.
type acquisition interface {
	// rawSizes returns stored sizes per dimension. Dimension 0 counts
	// points (complex pairs when complex); indirect dimensions count rows.
	rawSizes() []int
	sf(dim int) (float64, bool)
	sw(dim int) (float64, bool)
	// refs derives the reference of every dimension in one pass.
	refs(sf func(dim int) float64) []option[float64]
	nucleus(dim int) (string, bool)
	// mode returns the acquisition-mode key of an indirect dimension.
	mode(dim int) string
	// directReal reports a real-valued dimension 0 (processed data only).
	directReal() bool
	phases(dim int) (ph0, ph1 float64)
	groupDelay() float64
	temperature() (float64, bool)
}

// -----------------------------------------------------------------------------
// Geometry
// -----------------------------------------------------------------------------

// Geometry holds the per-dimension acquisition descriptors of one dataset.
//
// Each numeric accessor returns an explicit override if one is set,
// otherwise a header-derived value computed on first access and cached.
// Reset drops both so the next access recomputes from the header.
// Geometry is not safe for concurrent use.
type Geometry struct {
	acq    acquisition
	path   string
	logger *zap.Logger

	nDim      int
	baseSize  []int
	phaseMods []PhaseMod

	size     []field[int]
	complex  []field[bool]
	sf       []field[float64]
	sw       []field[float64]
	ref      []field[float64]
	refPoint []field[float64]
	nucleus  []field[string]
}

func newGeometry(acq acquisition, path string, logger *zap.Logger) *Geometry {
	raw := acq.rawSizes()
	if len(raw) > MaxDims {
		raw = raw[:MaxDims]
	}
	g := &Geometry{
		acq:       acq,
		path:      path,
		logger:    logger,
		nDim:      len(raw),
		baseSize:  make([]int, len(raw)),
		phaseMods: make([]PhaseMod, len(raw)),
		size:      make([]field[int], len(raw)),
		complex:   make([]field[bool], len(raw)),
		sf:        make([]field[float64], len(raw)),
		sw:        make([]field[float64], len(raw)),
		ref:       make([]field[float64], len(raw)),
		refPoint:  make([]field[float64], len(raw)),
		nucleus:   make([]field[string], len(raw)),
	}

	for dim, n := range raw {
		if dim == 0 {
			pm := directPhase
			if acq.directReal() {
				pm = phaseTable[ModeReal]
			}
			g.phaseMods[0] = pm
			g.baseSize[0] = n
			continue
		}
		mode := acq.mode(dim)
		pm, ok := LookupPhaseMod(mode)
		if !ok {
			logger.Warn("unknown acquisition mode, assuming STATES",
				zap.String("path", path),
				zap.Int("dim", dim),
				zap.String("mode", mode))
		}
		g.phaseMods[dim] = pm
		// Indirect complex sizes are stored as rows of both phases.
		if pm.Complex {
			n /= 2
		}
		g.baseSize[dim] = n
	}
	return g
}

// NDim returns the number of dimensions.
func (g *Geometry) NDim() int { return g.nDim }

func (g *Geometry) valid(dim int) bool { return dim >= 0 && dim < g.nDim }

func (g *Geometry) missing(dim int, param string, def any) {
	g.logger.Warn("missing acquisition parameter, using default",
		zap.String("path", g.path),
		zap.Int("dim", dim),
		zap.String("param", param),
		zap.Any("default", def),
		zap.Error(ErrMissingParameter))
}

// Size returns the number of points of dim, in complex pairs for complex
// dimensions.
func (g *Geometry) Size(dim int) int {
	if !g.valid(dim) {
		return 0
	}
	return g.size[dim].get(func() int { return g.baseSize[dim] })
}

func (g *Geometry) SetSize(dim, n int) {
	if g.valid(dim) {
		g.size[dim].set(n)
	}
}

func (g *Geometry) ResetSize(dim int) {
	if g.valid(dim) {
		g.size[dim].reset()
	}
}

// IsComplex reports whether dim stores complex values.
func (g *Geometry) IsComplex(dim int) bool {
	if !g.valid(dim) {
		return false
	}
	return g.complex[dim].get(func() bool { return g.phaseMods[dim].Complex })
}

func (g *Geometry) SetComplex(dim int, c bool) {
	if g.valid(dim) {
		g.complex[dim].set(c)
	}
}

func (g *Geometry) ResetComplex(dim int) {
	if g.valid(dim) {
		g.complex[dim].reset()
	}
}

// SF returns the spectrometer (carrier) frequency of dim in MHz.
func (g *Geometry) SF(dim int) float64 {
	if !g.valid(dim) {
		return 1.0
	}
	return g.sf[dim].get(func() float64 {
		v, ok := g.acq.sf(dim)
		if !ok {
			g.missing(dim, "SF", 1.0)
			return 1.0
		}
		return v
	})
}

func (g *Geometry) SetSF(dim int, v float64) {
	if g.valid(dim) {
		g.sf[dim].set(v)
	}
}

func (g *Geometry) ResetSF(dim int) {
	if g.valid(dim) {
		g.sf[dim].reset()
	}
}

// SW returns the spectral width of dim in Hz.
func (g *Geometry) SW(dim int) float64 {
	if !g.valid(dim) {
		return 1.0
	}
	return g.sw[dim].get(func() float64 {
		v, ok := g.acq.sw(dim)
		if !ok || v == 0 {
			g.missing(dim, "SW", 1.0)
			return 1.0
		}
		return v
	})
}

func (g *Geometry) SetSW(dim int, v float64) {
	if g.valid(dim) {
		g.sw[dim].set(v)
	}
}

// SetSWString parses s as Hz ("5000") or ppm ("12.5ppm", converted with
// the current SF). A blank or unparsable s resets to the header value.
func (g *Geometry) SetSWString(dim int, s string) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "ppm") {
		if ppm, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-3]), 64); err == nil {
			g.SetSW(dim, ppm*g.SF(dim))
			return
		}
		g.ResetSW(dim)
		return
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		g.SetSW(dim, v)
		return
	}
	g.ResetSW(dim)
}

func (g *Geometry) ResetSW(dim int) {
	if g.valid(dim) {
		g.sw[dim].reset()
	}
}

// Ref returns the reference value (ppm) at RefPoint of dim.
//
// Header-derived references are computed for every dimension at once: a
// query on any dimension fills the cache of all dimensions that have none.
func (g *Geometry) Ref(dim int) float64 {
	if !g.valid(dim) {
		return 0
	}
	if g.ref[dim].override.ok {
		return g.ref[dim].override.v
	}
	if !g.ref[dim].cached.ok {
		g.deriveRefs()
	}
	return g.ref[dim].cached.v
}

func (g *Geometry) deriveRefs() {
	refs := g.acq.refs(g.SF)
	for dim := range g.nDim {
		if g.ref[dim].cached.ok {
			continue
		}
		if dim < len(refs) && refs[dim].ok {
			g.ref[dim].cached = refs[dim]
			continue
		}
		g.missing(dim, "REF", 0.0)
		g.ref[dim].cached = some(0.0)
	}
}

func (g *Geometry) SetRef(dim int, v float64) {
	if g.valid(dim) {
		g.ref[dim].set(v)
	}
}

// SetRefString parses a ppm value or a symbolic token:
//
//	H2O       water shift at the sample temperature
//	AUTO      nucleus-ratio referencing against dimension 0
//	AUTOZERO  as AUTO, taking dimension 0 as 0 ppm at its carrier
//
// A blank or unparsable s resets to the header value.
func (g *Geometry) SetRefString(dim int, s string) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "H2O":
		temp, ok := g.acq.temperature()
		if !ok {
			temp = DefaultTemperature
		}
		g.SetRef(dim, WaterShift(temp))
		return
	case "AUTO":
		if v, ok := g.autoRef(dim, false); ok {
			g.SetRef(dim, v)
			return
		}
	case "AUTOZERO":
		if v, ok := g.autoRef(dim, true); ok {
			g.SetRef(dim, v)
			return
		}
	default:
		if v, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(s), "ppm"), 64); err == nil {
			g.SetRef(dim, v)
			return
		}
	}
	g.ResetRef(dim)
}

func (g *Geometry) autoRef(dim int, zero bool) (float64, bool) {
	if !g.valid(dim) {
		return 0, false
	}
	r0, ok := NucleusRatio(g.Nucleus(0))
	if !ok {
		return 0, false
	}
	r, ok := NucleusRatio(g.Nucleus(dim))
	if !ok {
		return 0, false
	}
	sf0 := g.SF(0)
	if !zero {
		sf0 = g.SF0(0)
	}
	return ratioRef(g.SF(dim), r, sf0/r0), true
}

func (g *Geometry) ResetRef(dim int) {
	if g.valid(dim) {
		g.ref[dim].reset()
	}
}

// RefPoint returns the point at which Ref applies. Default 1.0.
func (g *Geometry) RefPoint(dim int) float64 {
	if !g.valid(dim) {
		return 1.0
	}
	return g.refPoint[dim].get(func() float64 { return 1.0 })
}

func (g *Geometry) SetRefPoint(dim int, v float64) {
	if g.valid(dim) {
		g.refPoint[dim].set(v)
	}
}

func (g *Geometry) ResetRefPoint(dim int) {
	if g.valid(dim) {
		g.refPoint[dim].reset()
	}
}

// Nucleus returns the nucleus label of dim, such as "1H".
func (g *Geometry) Nucleus(dim int) string {
	if !g.valid(dim) {
		return ""
	}
	return g.nucleus[dim].get(func() string {
		v, ok := g.acq.nucleus(dim)
		if !ok {
			g.missing(dim, "NUCLEUS", "")
			return ""
		}
		return v
	})
}

func (g *Geometry) SetNucleus(dim int, n string) {
	if g.valid(dim) {
		g.nucleus[dim].set(n)
	}
}

func (g *Geometry) ResetNucleus(dim int) {
	if g.valid(dim) {
		g.nucleus[dim].reset()
	}
}

// SF0 returns the zero-ppm frequency of dim in MHz.
func (g *Geometry) SF0(dim int) float64 {
	return g.SF(dim) / (1 + g.Ref(dim)/1e6)
}

// FTType returns "ft" for complex dimensions and "rft" otherwise.
func (g *Geometry) FTType(dim int) string {
	if !g.valid(dim) {
		return ""
	}
	if g.complex[dim].override.ok {
		if g.complex[dim].override.v {
			return "ft"
		}
		return "rft"
	}
	return g.phaseMods[dim].FTType
}

// PhaseMod returns the phase-modulation entry of dim.
func (g *Geometry) PhaseMod(dim int) PhaseMod {
	if !g.valid(dim) {
		return PhaseMod{}
	}
	return g.phaseMods[dim]
}

// Phases returns the zero- and first-order phase recorded for dim.
func (g *Geometry) Phases(dim int) (ph0, ph1 float64) {
	if !g.valid(dim) {
		return 0, 0
	}
	return g.acq.phases(dim)
}

// GroupDelay returns the digital-filter shift of the direct dimension in
// points.
func (g *Geometry) GroupDelay() float64 { return g.acq.groupDelay() }

// Descriptor is a snapshot of one dimension.
type Descriptor struct {
	Dim      int
	Size     int
	Complex  bool
	SW       float64
	SF       float64
	SF0      float64
	Ref      float64
	RefPoint float64
	Nucleus  string
	FTType   string
	PhaseMod PhaseMod
}

// Descriptor returns the current values of dim.
func (g *Geometry) Descriptor(dim int) Descriptor {
	return Descriptor{
		Dim:      dim,
		Size:     g.Size(dim),
		Complex:  g.IsComplex(dim),
		SW:       g.SW(dim),
		SF:       g.SF(dim),
		SF0:      g.SF0(dim),
		Ref:      g.Ref(dim),
		RefPoint: g.RefPoint(dim),
		Nucleus:  g.Nucleus(dim),
		FTType:   g.FTType(dim),
		PhaseMod: g.PhaseMod(dim),
	}
}

func (d Descriptor) String() string {
	kind := "r"
	if d.Complex {
		kind = "c"
	}
	return fmt.Sprintf("dim %d: %d%s sw=%g sf=%g ref=%g %s %s",
		d.Dim, d.Size, kind, d.SW, d.SF, d.Ref, d.Nucleus, d.PhaseMod.Symbolic)
}
