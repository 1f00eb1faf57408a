package fid

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RS2D header parameter names.
const (
	rs2dMatrixDim     = "MATRIX_DIMENSION_%dD"
	rs2dBaseFreq      = "BASE_FREQ_%d"
	rs2dOffsetFreq    = "OFFSET_FREQ_%d"
	rs2dSpectralWidth = "SPECTRAL_WIDTH"
	rs2dSWIndirect    = "SPECTRAL_WIDTH_%dD"
	rs2dObserved      = "OBSERVED_NUCLEUS"
	rs2dNucleus       = "NUCLEUS_%d"
	rs2dAcqMode       = "ACQUISITION_MODE_%dD"
	rs2dSR            = "SR"
	rs2dPhase0        = "PHASE_0"
	rs2dPhase1        = "PHASE_1"
	rs2dFilterShift   = "DIGITAL_FILTER_SHIFT"
	rs2dFilterRemoved = "DIGITAL_FILTER_REMOVED"
	rs2dDataRepr      = "DATA_REPRESENTATION"
	rs2dTemperature   = "SAMPLE_TEMPERATURE"
	rs2dSequence      = "SEQUENCE_NAME"
	rs2dOperator      = "OPERATOR"
	rs2dDate          = "ACQUISITION_DATE"
	rs2dSolvent       = "SOLVENT"
	rs2dSampleName    = "SAMPLE_NAME"
	rs2dTitle         = "ACQUISITION_NAME"
	rs2dPosition      = "SAMPLE_POSITION"
)

// rs2dAcq derives geometry from an RS2D header.xml.
type rs2dAcq struct {
	h         HeaderStore
	processed bool
	path      string
	logger    *zap.Logger
}

func (a *rs2dAcq) rawSizes() []int {
	var sizes []int
	for dim := range MaxDims {
		n, ok := a.h.Int(fmt.Sprintf(rs2dMatrixDim, dim+1))
		if dim > 0 && (!ok || n <= 1) {
			break
		}
		sizes = append(sizes, n)
	}
	return sizes
}

func (a *rs2dAcq) sf(dim int) (float64, bool) {
	base, ok := a.h.Double(fmt.Sprintf(rs2dBaseFreq, dim+1))
	if !ok {
		return 0, false
	}
	offset, _ := a.h.Double(fmt.Sprintf(rs2dOffsetFreq, dim+1))
	return (base + offset) / 1e6, true
}

func (a *rs2dAcq) sw(dim int) (float64, bool) {
	if dim == 0 {
		return a.h.Double(rs2dSpectralWidth)
	}
	return a.h.Double(fmt.Sprintf(rs2dSWIndirect, dim+1))
}

// refs computes every dimension from the SR list, which is indexed by
// dimension. Dimensions beyond the list use SR 0.
func (a *rs2dAcq) refs(sf func(int) float64) []option[float64] {
	srs := a.h.DoubleList(rs2dSR)
	n := len(a.rawSizes())
	out := make([]option[float64], n)
	for dim := range n {
		sr := 0.0
		if dim < len(srs) {
			sr = srs[dim]
		} else {
			a.logger.Warn("missing acquisition parameter, using default",
				zap.String("path", a.path),
				zap.Int("dim", dim),
				zap.String("param", rs2dSR),
				zap.Float64("default", 0),
				zap.Error(ErrMissingParameter))
		}
		offset, _ := a.h.Double(fmt.Sprintf(rs2dOffsetFreq, dim+1))
		out[dim] = some((sr + offset) / (sf(dim) - offset/1e6))
	}
	return out
}

func (a *rs2dAcq) nucleus(dim int) (string, bool) {
	if dim == 0 {
		if v, ok := a.h.Get(rs2dObserved); ok && v != "" {
			return v, true
		}
	}
	v, ok := a.h.Get(fmt.Sprintf(rs2dNucleus, dim+1))
	return v, ok && v != ""
}

func (a *rs2dAcq) mode(dim int) string {
	v, _ := a.h.Get(fmt.Sprintf(rs2dAcqMode, dim+1))
	return v
}

func (a *rs2dAcq) directReal() bool {
	if !a.processed {
		return false
	}
	v, _ := a.h.Get(rs2dDataRepr)
	return strings.EqualFold(v, ModeReal)
}

func (a *rs2dAcq) phases(dim int) (float64, float64) {
	var ph0, ph1 float64
	if l := a.h.DoubleList(rs2dPhase0); dim < len(l) {
		ph0 = l[dim]
	}
	if l := a.h.DoubleList(rs2dPhase1); dim < len(l) {
		ph1 = l[dim]
	}
	return ph0, ph1
}

func (a *rs2dAcq) groupDelay() float64 {
	if a.processed {
		return 0
	}
	if removed, ok := a.h.Bool(rs2dFilterRemoved); ok && removed {
		return 0
	}
	v, _ := a.h.Double(rs2dFilterShift)
	return v
}

// temperature returns kelvin; values that look like Celsius are converted.
func (a *rs2dAcq) temperature() (float64, bool) {
	t, ok := a.h.Double(rs2dTemperature)
	if !ok {
		return 0, false
	}
	if t < 150 {
		t += 273.15
	}
	return t, true
}

func rs2dMetadata(h HeaderStore, acq *rs2dAcq) Metadata {
	get := func(name string) string {
		v, _ := h.Get(name)
		return strings.TrimSpace(v)
	}
	m := Metadata{
		User:     get(rs2dOperator),
		Sequence: get(rs2dSequence),
		Solvent:  get(rs2dSolvent),
		Sample:   get(rs2dSampleName),
		Title:    get(rs2dTitle),
		Position: get(rs2dPosition),
		Time:     parseRS2DDate(get(rs2dDate)),
	}
	if t, ok := acq.temperature(); ok {
		m.Temperature = t
	}
	return m
}

var rs2dDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// parseRS2DDate accepts ISO-like layouts or epoch milliseconds.
func parseRS2DDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	for _, layout := range rs2dDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// openRS2DHeader loads <dir>/header.xml.
func openRS2DHeader(dir string) (HeaderStore, error) {
	return LoadXMLHeader(filepath.Join(dir, headerFile))
}

// openRS2D opens raw and processed RS2D directories. Both use float32
// big-endian samples without exchange or sign flips; processed 3-D and
// 4-D data store last-dimension planes in descending order.
func openRS2D(kind FormatKind) func(string, *openConfig) (*Data, error) {
	return func(dir string, cfg *openConfig) (*Data, error) {
		h, err := openRS2DHeader(dir)
		if err != nil {
			cfg.logger.Warn("header load failed", zap.String("path", dir), zap.Error(err))
			return nil, err
		}
		acq := &rs2dAcq{h: h, processed: kind == FormatRS2DProc, path: dir, logger: cfg.logger}
		if n, ok := h.Int(fmt.Sprintf(rs2dMatrixDim, 1)); !ok || n <= 0 {
			return nil, &HeaderParseError{
				Path: h.Path(),
				Err:  fmt.Errorf("%w: %s", ErrMissingParameter, fmt.Sprintf(rs2dMatrixDim, 1)),
			}
		}
		return newData(kind, dir, filepath.Join(dir, dataFile), h, acq, rs2dMetadata(h, acq),
			rs2dCodec, 0, acq.processed, readFlags{}, cfg)
	}
}
