package fid

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Layout constants
const (
	headerFile = "header.xml"
	dataFile   = "data.dat"
	seriesFile = "Serie.xml"
	procDir    = "Proc"

	brukerAcqus  = "acqus"
	brukerFid    = "fid"
	brukerSer    = "ser"
	brukerProcs  = "procs"
	brukerPdata  = "pdata"
	varianPar    = "procpar"
	brukerBlock  = 1024
	maxProcIDLen = 9
)

// -----------------------------------------------------------------------------
// Row layout
// -----------------------------------------------------------------------------

// rowLayout maps multi-dimensional coordinates to rows of the data file.
//
// Dimension 0 runs along a row. Each indirect dimension e contributes
// sizes[e]*phases[e] rows; coordinate k with phase p sits at
// k*phases[e]+p, and dimension 1 varies fastest.
type rowLayout struct {
	valuesPerRow int
	rowBytes     int
	width        int
	sizes        []int // points per dimension; sizes[0] unused
	phases       []int // stored rows per point; phases[0] unused
	reverseLast  bool
}

func newRowLayout(valuesPerRow int, sizes, phases []int, width, blockAlign int, reverseLast bool) rowLayout {
	l := rowLayout{
		valuesPerRow: valuesPerRow,
		width:        width,
		sizes:        sizes,
		phases:       phases,
		reverseLast:  reverseLast && len(sizes) >= 3,
	}
	l.rowBytes = l.valuesPerRow * l.width
	if blockAlign > 0 && l.rowBytes%blockAlign != 0 {
		l.rowBytes += blockAlign - l.rowBytes%blockAlign
	}
	return l
}

// geometryLayout derives the stored layout from header-derived sizes and
// phase modes, ignoring overrides.
func geometryLayout(g *Geometry, codec sampleCodec, blockAlign int, reverseLast bool) rowLayout {
	sizes := make([]int, g.nDim)
	phases := make([]int, g.nDim)
	for e := 1; e < g.nDim; e++ {
		sizes[e] = g.baseSize[e]
		phases[e] = g.phaseMods[e].Phases()
	}
	values := g.baseSize[0] * g.phaseMods[0].Phases()
	return newRowLayout(values, sizes, phases, codec.width(), blockAlign, reverseLast)
}

func (l rowLayout) nDim() int { return len(l.sizes) }

func (l rowLayout) rows(e int) int { return l.sizes[e] * l.phases[e] }

// nRows returns the number of logical rows of a fully sampled dataset.
func (l rowLayout) nRows() int {
	n := 1
	for e := 1; e < l.nDim(); e++ {
		n *= l.rows(e)
	}
	return n
}

// blockSize returns the number of rows stored per sampled point.
func (l rowLayout) blockSize() int {
	n := 1
	for e := 1; e < l.nDim(); e++ {
		n *= l.phases[e]
	}
	return n
}

// split decomposes logical row i into point and phase coordinates.
func (l rowLayout) split(i int) (points, phases []int) {
	points = make([]int, l.nDim())
	phases = make([]int, l.nDim())
	for e := 1; e < l.nDim(); e++ {
		r := i % l.rows(e)
		i /= l.rows(e)
		points[e] = r / l.phases[e]
		phases[e] = r % l.phases[e]
	}
	return points, phases
}

// uniformRow returns the file row of the given coordinates.
func (l rowLayout) uniformRow(points, phases []int) int {
	row, stride := 0, 1
	last := l.nDim() - 1
	for e := 1; e < l.nDim(); e++ {
		k := points[e]
		if l.reverseLast && e == last {
			k = l.sizes[e] - 1 - k
		}
		row += (k*l.phases[e] + phases[e]) * stride
		stride *= l.rows(e)
	}
	return row
}

// scheduledRow returns the file row of the given coordinates under s, or
// false if the point was not acquired.
func (l rowLayout) scheduledRow(s *SampleSchedule, points, phases []int) (int, bool) {
	pos, ok := s.Position(points[1:])
	if !ok {
		return 0, false
	}
	phase, stride := 0, 1
	for e := 1; e < l.nDim(); e++ {
		phase += phases[e] * stride
		stride *= l.phases[e]
	}
	return pos*l.blockSize() + phase, true
}

// offset returns the byte offset of value j of file row.
func (l rowLayout) offset(row, j int) int64 {
	return int64(row)*int64(l.rowBytes) + int64(j)*int64(l.width)
}

// -----------------------------------------------------------------------------
// Processed-data directories
// -----------------------------------------------------------------------------

// ProcPath returns <dataset>/Proc/<id>.
func ProcPath(dataset string, id int) string {
	return filepath.Join(dataset, procDir, strconv.Itoa(id))
}

// NextProcID returns one more than the largest numeric entry of
// <dataset>/Proc, or 0 when there is none.
func NextProcID(dataset string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(dataset, procDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("fid: list proc dirs: %w", err)
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := parseProcID(e.Name()); ok && id+1 > next {
			next = id + 1
		}
	}
	return next, nil
}

func parseProcID(name string) (int, bool) {
	if name == "" || len(name) > maxProcIDLen {
		return 0, false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(name)
	return id, err == nil
}

// isProcPath reports whether dir has the form <dataset>/Proc/<N>.
func isProcPath(dir string) bool {
	dir = filepath.Clean(dir)
	if _, ok := parseProcID(filepath.Base(dir)); !ok {
		return false
	}
	parent := filepath.Dir(dir)
	return filepath.Base(parent) == procDir && filepath.Dir(parent) != parent
}

// validateProcPath rejects writer targets outside <dataset>/Proc/<N>.
func validateProcPath(target string) error {
	clean := filepath.Clean(target)
	if _, ok := parseProcID(filepath.Base(clean)); !ok {
		return &InvalidOutputPathError{Path: target, Reason: "last element must be a numeric proc id"}
	}
	parent := filepath.Dir(clean)
	if filepath.Base(parent) != procDir {
		return &InvalidOutputPathError{Path: target, Reason: "proc id must sit under a " + procDir + " directory"}
	}
	if info, err := os.Stat(clean); err == nil && !info.IsDir() {
		return &InvalidOutputPathError{Path: target, Reason: "exists and is not a directory"}
	}
	return nil
}
