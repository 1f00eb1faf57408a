package fid

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nmrfx/fidio/internal/metrics"
)

// Data is an open vendor dataset: its header, derived geometry, and the
// channel to its sample file.
//
// A Data owns its file handle and must be closed. Reads are not safe for
// concurrent use; callers serialize access to one handle.
type Data struct {
	kind     FormatKind
	dir      string
	dataPath string
	header   HeaderStore
	geom     *Geometry
	meta     Metadata
	logger   *zap.Logger

	codec  sampleCodec
	layout rowLayout
	file   *os.File
	closed bool
	buf    []byte
	vals   []float64

	scale       float64
	exchangeXY  bool
	negateImag  bool
	negatePairs bool
	schedule    *SampleSchedule
}

// readFlags are per-format defaults for the direct-dimension pipeline.
type readFlags struct {
	exchangeXY  bool
	negateImag  bool
	negatePairs bool
}

func newData(kind FormatKind, dir, dataPath string, h HeaderStore, acq acquisition, meta Metadata,
	codec sampleCodec, blockAlign int, reverseLast bool, flags readFlags, cfg *openConfig) (*Data, error) {
	geom := newGeometry(acq, dir, cfg.logger)

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("fid: open data %s: %w", dataPath, err)
	}

	d := &Data{
		kind:        kind,
		dir:         dir,
		dataPath:    dataPath,
		header:      h,
		geom:        geom,
		meta:        meta,
		logger:      cfg.logger,
		codec:       codec,
		layout:      geometryLayout(geom, codec, blockAlign, reverseLast),
		file:        f,
		scale:       floatOr(cfg.scale, 1.0),
		exchangeXY:  boolOr(cfg.exchangeXY, flags.exchangeXY),
		negateImag:  boolOr(cfg.negateImag, flags.negateImag),
		negatePairs: boolOr(cfg.negatePairs, flags.negatePairs),
	}

	sched := cfg.schedule
	if sched == nil && geom.nDim > 1 {
		if path := filepath.Join(dir, ScheduleFile); fileExists(path) {
			s, err := LoadSchedule(path)
			if err != nil {
				cfg.logger.Warn("ignoring unreadable sample schedule", zap.String("path", path), zap.Error(err))
			} else {
				sched = s
			}
		}
	}
	if sched != nil {
		if err := d.SetSchedule(sched); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return d, nil
}

// Kind returns the detected format.
func (d *Data) Kind() FormatKind { return d.kind }

// Path returns the dataset directory.
func (d *Data) Path() string { return d.dir }

// DataPath returns the sample file.
func (d *Data) DataPath() string { return d.dataPath }

// Header returns the parameter store.
func (d *Data) Header() HeaderStore { return d.header }

// Geometry returns the per-dimension acquisition descriptors.
func (d *Data) Geometry() *Geometry { return d.geom }

// Metadata returns descriptive sample and acquisition facts.
func (d *Data) Metadata() Metadata { return d.meta }

// NDim returns the number of dimensions.
func (d *Data) NDim() int { return d.geom.nDim }

// Schedule returns the active sample schedule, or nil.
func (d *Data) Schedule() *SampleSchedule { return d.schedule }

// SetSchedule activates non-uniform sampling. The schedule must cover
// every indirect dimension and fit inside the stored sizes; nil restores
// uniform reads.
func (d *Data) SetSchedule(s *SampleSchedule) error {
	if s == nil {
		d.schedule = nil
		return nil
	}
	dims := s.Dims()
	if len(dims) != d.layout.nDim()-1 {
		return fmt.Errorf("fid: schedule has %d dimensions, dataset has %d indirect", len(dims), d.layout.nDim()-1)
	}
	for i, n := range dims {
		if n > d.layout.sizes[i+1] {
			return fmt.Errorf("fid: schedule dimension %d size %d exceeds %d", i+1, n, d.layout.sizes[i+1])
		}
	}
	d.schedule = s
	return nil
}

// NVectors returns the number of direct-dimension vectors.
func (d *Data) NVectors() int { return d.layout.nRows() }

// NVectorsAlong returns the number of vectors along dim.
func (d *Data) NVectorsAlong(dim int) int {
	if dim == 0 {
		return d.NVectors()
	}
	if dim < 0 || dim >= d.layout.nDim() {
		return 0
	}
	return d.layout.valuesPerRow * d.layout.nRows() / d.layout.rows(dim)
}

// Close releases the data file. Further reads fail with ErrHandleClosed.
func (d *Data) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}

// -----------------------------------------------------------------------------
// Direct-dimension reads
// -----------------------------------------------------------------------------

// ReadVector reads direct-dimension vector i into v, resizing it.
// A vector whose point is absent from the active schedule reads as zeros.
func (d *Data) ReadVector(i int, v *Vec) error {
	if d.closed {
		return ErrHandleClosed
	}
	if i < 0 || i >= d.NVectors() {
		return &OutOfBoundsError{Index: i, Path: d.dataPath}
	}

	cplx := d.geom.phaseMods[0].Complex
	n := d.layout.valuesPerRow
	if cplx {
		n /= 2
	}
	v.Resize(n, cplx)
	d.directMeta(v)

	row, ok := d.fileRow(i)
	if !ok {
		return nil
	}
	vals, err := d.readRow(i, row)
	if err != nil {
		return err
	}

	if !cplx {
		copy(v.Re, vals)
		if d.negatePairs {
			for k := 1; k < len(v.Re); k += 2 {
				v.Re[k] = -v.Re[k]
			}
		}
		return nil
	}
	for k := range n {
		re, im := vals[2*k], vals[2*k+1]
		if d.exchangeXY {
			re, im = im, re
		}
		if d.negateImag {
			im = -im
		}
		if d.negatePairs && k%2 == 1 {
			re, im = -re, -im
		}
		v.Re[k], v.Im[k] = re, im
	}
	return nil
}

// ReadInterleaved reads vector i as re,im pairs (or real values) into dst,
// which must hold at least the row length.
func (d *Data) ReadInterleaved(i int, dst []float64) error {
	var v Vec
	if err := d.ReadVector(i, &v); err != nil {
		return err
	}
	src := v.Interleaved()
	if len(dst) < len(src) {
		return fmt.Errorf("fid: buffer of %d values for row of %d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

// ReadComplex reads vector i into dst as complex values.
func (d *Data) ReadComplex(i int, dst []complex128) error {
	var v Vec
	if err := d.ReadVector(i, &v); err != nil {
		return err
	}
	if len(dst) < v.Len() {
		return fmt.Errorf("fid: buffer of %d points for row of %d", len(dst), v.Len())
	}
	copy(dst, v.Complex128())
	return nil
}

func (d *Data) directMeta(v *Vec) {
	d.dimMeta(v, 0)
	v.GroupDelay = d.geom.GroupDelay()
}

func (d *Data) dimMeta(v *Vec, dim int) {
	g := d.geom
	sw, sf := g.SW(dim), g.SF(dim)
	v.DwellTime = 1 / sw
	v.CenterFreq = sf
	v.RefValue = g.Ref(dim) + (sw/sf)/2
	v.Ph0, v.Ph1 = g.Phases(dim)
	v.GroupDelay = 0
}

// fileRow maps logical row i to its stored row.
func (d *Data) fileRow(i int) (int, bool) {
	points, phases := d.layout.split(i)
	if d.schedule != nil {
		return d.layout.scheduledRow(d.schedule, points, phases)
	}
	return d.layout.uniformRow(points, phases), true
}

// readRow reads and scales one stored row.
func (d *Data) readRow(index, row int) ([]float64, error) {
	n := d.layout.valuesPerRow
	want := n * d.layout.width
	if cap(d.buf) < want {
		d.buf = make([]byte, want)
	}
	buf := d.buf[:want]
	if err := d.readAt(index, buf, d.layout.offset(row, 0)); err != nil {
		return nil, err
	}

	if cap(d.vals) < n {
		d.vals = make([]float64, n)
	}
	vals := d.vals[:n]
	d.codec.decode(vals, buf)
	if d.scale != 1 {
		for k := range vals {
			vals[k] /= d.scale
		}
	}
	metrics.RecordVectorRead(d.kind.Vendor(), "direct", want)
	return vals, nil
}

// readAt fills buf from off. A short read closes the handle.
func (d *Data) readAt(index int, buf []byte, off int64) error {
	got, err := d.file.ReadAt(buf, off)
	if got == len(buf) {
		return nil
	}
	_ = d.Close()
	if err == nil || errors.Is(err, io.EOF) {
		d.logger.Warn("short read, handle closed",
			zap.String("path", d.dataPath),
			zap.Int("vector", index),
			zap.Int("want", len(buf)),
			zap.Int("got", got))
		return &OutOfBoundsError{Index: index, Path: d.dataPath, Want: len(buf), Got: got}
	}
	d.logger.Warn("read failed, handle closed", zap.String("path", d.dataPath), zap.Error(err))
	return fmt.Errorf("fid: read %s: %w", d.dataPath, err)
}

// -----------------------------------------------------------------------------
// Indirect-dimension reads
// -----------------------------------------------------------------------------

// ReadVectorAlong reads vector i along dim into v. For dim 0 it is
// ReadVector. For an indirect dimension, i selects value i%valuesPerRow of
// each row and the remaining quotient enumerates the other indirect
// coordinates; one value is read per row.
func (d *Data) ReadVectorAlong(dim, i int, v *Vec) error {
	if dim == 0 {
		return d.ReadVector(i, v)
	}
	if d.closed {
		return ErrHandleClosed
	}
	l := d.layout
	if dim < 0 || dim >= l.nDim() || i < 0 || i >= d.NVectorsAlong(dim) {
		return &OutOfBoundsError{Index: i, Path: d.dataPath}
	}

	j := i % l.valuesPerRow
	rest := i / l.valuesPerRow
	points := make([]int, l.nDim())
	phases := make([]int, l.nDim())
	for e := 1; e < l.nDim(); e++ {
		if e == dim {
			continue
		}
		r := rest % l.rows(e)
		rest /= l.rows(e)
		points[e], phases[e] = r/l.phases[e], r%l.phases[e]
	}

	pm := d.geom.phaseMods[dim]
	v.Resize(l.sizes[dim], pm.Complex)
	d.dimMeta(v, dim)

	buf := make([]byte, l.width)
	one := make([]float64, 1)
	for k := range l.sizes[dim] {
		for p := range l.phases[dim] {
			points[dim], phases[dim] = k, p
			var (
				row int
				ok  = true
			)
			if d.schedule != nil {
				row, ok = l.scheduledRow(d.schedule, points, phases)
			} else {
				row = l.uniformRow(points, phases)
			}
			if !ok {
				continue
			}
			if err := d.readAt(i, buf, l.offset(row, j)); err != nil {
				return err
			}
			d.codec.decode(one, buf)
			val := one[0] / d.scale
			if p == 0 {
				v.Re[k] = val
			} else {
				if pm.NegateImag {
					val = -val
				}
				v.Im[k] = val
			}
		}
	}
	metrics.RecordVectorRead(d.kind.Vendor(), "indirect", l.sizes[dim]*l.phases[dim]*l.width)
	return nil
}

// -----------------------------------------------------------------------------
// Whole-dataset load
// -----------------------------------------------------------------------------

// Load reads every direct-dimension vector into a Dataset carrying the
// current geometry.
func (d *Data) Load() (*Dataset, error) {
	ds, err := NewDatasetFromGeometry(d.geom)
	if err != nil {
		return nil, err
	}
	var v Vec
	for i := range d.NVectors() {
		if err := d.ReadVector(i, &v); err != nil {
			return nil, err
		}
		ds.SetRow(i, v.Interleaved())
	}
	return ds, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
