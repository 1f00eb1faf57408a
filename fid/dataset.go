package fid

import (
	"fmt"
	"slices"
	"time"
)

// Metadata holds descriptive acquisition facts used for indexing.
type Metadata struct {
	User        string
	Sequence    string
	Solvent     string
	Sample      string
	Title       string
	Position    string
	Time        time.Time
	Temperature float64 // kelvin, 0 when unknown
}

// DimInfo describes one dimension of an in-memory Dataset.
type DimInfo struct {
	Size    int // points; complex pairs when Complex
	Complex bool
	SW      float64
	SF      float64
	Ref     float64
	Nucleus string
	Ph0     float64
	Ph1     float64
}

func (d DimInfo) phases() int {
	if d.Complex {
		return 2
	}
	return 1
}

// Dataset is a multi-dimensional sample matrix held in memory as rows of
// the direct dimension. Row i follows the same logical ordering as
// Data.ReadVector: dimension 1 fastest, complex indirect points stored as
// consecutive real and imaginary rows.
type Dataset struct {
	dims []DimInfo
	rows [][]float64
}

// NewDataset allocates a zeroed dataset.
func NewDataset(dims []DimInfo) (*Dataset, error) {
	if len(dims) == 0 || len(dims) > MaxDims {
		return nil, fmt.Errorf("fid: dataset with %d dimensions", len(dims))
	}
	for i, d := range dims {
		if d.Size <= 0 {
			return nil, fmt.Errorf("fid: dimension %d has size %d", i, d.Size)
		}
	}
	ds := &Dataset{dims: slices.Clone(dims)}
	ds.rows = make([][]float64, ds.NRows())
	for i := range ds.rows {
		ds.rows[i] = make([]float64, ds.ValuesPerRow())
	}
	return ds, nil
}

// NewDatasetFromGeometry allocates a dataset shaped like g, copying its
// current (possibly overridden) descriptors. Sizes follow the stored
// layout so every row of the source can be loaded.
func NewDatasetFromGeometry(g *Geometry) (*Dataset, error) {
	dims := make([]DimInfo, g.nDim)
	for i := range dims {
		ph0, ph1 := g.Phases(i)
		dims[i] = DimInfo{
			Size:    g.baseSize[i],
			Complex: g.phaseMods[i].Complex,
			SW:      g.SW(i),
			SF:      g.SF(i),
			Ref:     g.Ref(i),
			Nucleus: g.Nucleus(i),
			Ph0:     ph0,
			Ph1:     ph1,
		}
	}
	return NewDataset(dims)
}

// NDim returns the number of dimensions.
func (ds *Dataset) NDim() int { return len(ds.dims) }

// Dim returns the descriptor of dimension i.
func (ds *Dataset) Dim(i int) DimInfo { return ds.dims[i] }

// SetDim replaces the descriptor of dimension i, keeping its shape.
func (ds *Dataset) SetDim(i int, d DimInfo) error {
	cur := ds.dims[i]
	if d.Size != cur.Size || d.Complex != cur.Complex {
		return fmt.Errorf("fid: dimension %d shape change %d/%t -> %d/%t", i, cur.Size, cur.Complex, d.Size, d.Complex)
	}
	ds.dims[i] = d
	return nil
}

// ValuesPerRow returns the number of stored values in one row.
func (ds *Dataset) ValuesPerRow() int { return ds.dims[0].Size * ds.dims[0].phases() }

// NRows returns the number of direct-dimension rows.
func (ds *Dataset) NRows() int {
	n := 1
	for _, d := range ds.dims[1:] {
		n *= d.Size * d.phases()
	}
	return n
}

// Row returns row i as interleaved values. The slice aliases the dataset.
func (ds *Dataset) Row(i int) []float64 { return ds.rows[i] }

// SetRow copies values into row i.
func (ds *Dataset) SetRow(i int, values []float64) {
	copy(ds.rows[i], values)
}

// Vector loads row i into v.
func (ds *Dataset) Vector(i int, v *Vec) {
	v.SetInterleaved(ds.rows[i], ds.dims[0].Complex)
}

// SetVector stores v as row i.
func (ds *Dataset) SetVector(i int, v *Vec) error {
	vals := v.Interleaved()
	if len(vals) != ds.ValuesPerRow() {
		return fmt.Errorf("fid: vector of %d values for row of %d", len(vals), ds.ValuesPerRow())
	}
	ds.SetRow(i, vals)
	return nil
}

// layout returns the stored row layout of ds.
func (ds *Dataset) layout(width int, reverseLast bool) rowLayout {
	sizes := make([]int, len(ds.dims))
	phases := make([]int, len(ds.dims))
	for e := 1; e < len(ds.dims); e++ {
		sizes[e] = ds.dims[e].Size
		phases[e] = ds.dims[e].phases()
	}
	return newRowLayout(ds.ValuesPerRow(), sizes, phases, width, 0, reverseLast)
}
