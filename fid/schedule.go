package fid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// ScheduleFile is the conventional schedule file name inside a dataset
// directory.
const ScheduleFile = "nuslist"

// SampleSchedule lists the indirect-dimension points actually acquired,
// in acquisition order. Point i of the schedule is stored at file block i.
//
// members is the set of acquired grid indices. byRank maps the rank of an
// index within members to its acquisition position.
type SampleSchedule struct {
	dims    []int
	points  [][]int
	members *roaring.Bitmap
	byRank  []int
}

func newSchedule(dims []int, points [][]int) (*SampleSchedule, error) {
	if len(dims) == 0 {
		return nil, errors.New("fid: schedule has no dimensions")
	}
	total := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("fid: schedule dimension size %d", d)
		}
		total *= d
	}
	if uint64(total) > math.MaxUint32 {
		return nil, fmt.Errorf("fid: schedule grid of %d points too large", total)
	}

	s := &SampleSchedule{
		dims:    slices.Clone(dims),
		members: roaring.New(),
	}
	keys := make([]uint32, 0, len(points))
	for _, p := range points {
		if len(p) != len(dims) {
			return nil, fmt.Errorf("fid: schedule point %v has %d coordinates, want %d", p, len(p), len(dims))
		}
		key, ok := s.linear(p)
		if !ok {
			return nil, fmt.Errorf("fid: schedule point %v outside %v", p, dims)
		}
		if s.members.Contains(key) {
			continue
		}
		s.members.Add(key)
		keys = append(keys, key)
		s.points = append(s.points, slices.Clone(p))
	}

	s.byRank = make([]int, len(keys))
	for pos, key := range keys {
		s.byRank[s.members.Rank(key)-1] = pos
	}
	return s, nil
}

// linear maps coordinates to a grid index, first dimension fastest.
func (s *SampleSchedule) linear(coords []int) (uint32, bool) {
	idx, stride := 0, 1
	for i, c := range coords {
		if c < 0 || c >= s.dims[i] {
			return 0, false
		}
		idx += c * stride
		stride *= s.dims[i]
	}
	return uint32(idx), true
}

// Dims returns the full grid size of each scheduled dimension.
func (s *SampleSchedule) Dims() []int { return slices.Clone(s.dims) }

// Len returns the number of acquired points.
func (s *SampleSchedule) Len() int { return len(s.points) }

// Points returns the acquired coordinates in acquisition order.
func (s *SampleSchedule) Points() [][]int {
	out := make([][]int, len(s.points))
	for i, p := range s.points {
		out[i] = slices.Clone(p)
	}
	return out
}

// Contains reports whether coords were acquired.
func (s *SampleSchedule) Contains(coords []int) bool {
	key, ok := s.linear(coords)
	return ok && s.members.Contains(key)
}

// Position returns the acquisition position of coords.
func (s *SampleSchedule) Position(coords []int) (int, bool) {
	key, ok := s.linear(coords)
	if !ok || !s.members.Contains(key) {
		return 0, false
	}
	return s.byRank[s.members.Rank(key)-1], true
}

// Fraction returns the sampled fraction of the full grid.
func (s *SampleSchedule) Fraction() float64 {
	total := 1
	for _, d := range s.dims {
		total *= d
	}
	return float64(s.members.GetCardinality()) / float64(total)
}

// WriteTo writes one whitespace-separated coordinate tuple per line.
func (s *SampleSchedule) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, p := range s.points {
		parts := make([]string, len(p))
		for i, c := range p {
			parts[i] = strconv.Itoa(c)
		}
		m, err := bw.WriteString(strings.Join(parts, " ") + "\n")
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// LoadSchedule reads a schedule file: one whitespace-separated index tuple
// per line, blank lines and '#' comments ignored. Grid sizes are taken as
// the largest index plus one.
func LoadSchedule(path string) (*SampleSchedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fid: open schedule: %w", err)
	}
	defer closer(f)()

	s, err := ReadSchedule(f)
	if err != nil {
		return nil, fmt.Errorf("fid: schedule %s: %w", path, err)
	}
	return s, nil
}

// ReadSchedule parses schedule text from r.
func ReadSchedule(r io.Reader) (*SampleSchedule, error) {
	var (
		points [][]int
		dims   []int
	)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		p := make([]int, len(fields))
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("line %d: bad index %q", line, f)
			}
			p[i] = v
		}
		if dims == nil {
			dims = make([]int, len(p))
		}
		if len(p) != len(dims) {
			return nil, fmt.Errorf("line %d: %d coordinates, want %d", line, len(p), len(dims))
		}
		for i, v := range p {
			dims[i] = max(dims[i], v+1)
		}
		points = append(points, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, errors.New("empty schedule")
	}
	return newSchedule(dims, points)
}

// UniformSchedule samples every point of the grid, first dimension
// fastest.
func UniformSchedule(dims []int) (*SampleSchedule, error) {
	return ZeroFillSchedule(dims, dims)
}

// ZeroFillSchedule samples the first keep[i] points of each dimension of
// the grid; the remainder is left for zero filling.
func ZeroFillSchedule(dims, keep []int) (*SampleSchedule, error) {
	if len(keep) != len(dims) {
		return nil, fmt.Errorf("fid: keep has %d dimensions, want %d", len(keep), len(dims))
	}
	for i, k := range keep {
		if k < 1 || k > dims[i] {
			return nil, fmt.Errorf("fid: keep %d outside 1..%d", k, dims[i])
		}
	}
	var points [][]int
	cur := make([]int, len(dims))
	for {
		points = append(points, slices.Clone(cur))
		i := 0
		for ; i < len(cur); i++ {
			cur[i]++
			if cur[i] < keep[i] {
				break
			}
			cur[i] = 0
		}
		if i == len(cur) {
			break
		}
	}
	return newSchedule(dims, points)
}

// PoissonGapSchedule draws n of size points of one dimension with
// sine-weighted Poisson gaps, so early points are sampled densely.
// The same seed yields the same schedule.
func PoissonGapSchedule(size, n int, seed uint64) (*SampleSchedule, error) {
	if n <= 0 || n > size {
		return nil, fmt.Errorf("fid: poisson-gap %d of %d points", n, size)
	}
	if n == size {
		return UniformSchedule([]int{size})
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	adj := 2 * (float64(size)/float64(n) - 1)

	var picked []int
	for range 10000 {
		picked = picked[:0]
		for i := 0; i < size; i++ {
			picked = append(picked, i)
			i += poisson(rng, adj*math.Sin(float64(i+1)/float64(size+1)*math.Pi/2))
		}
		switch {
		case len(picked) > n:
			adj *= 1.02
		case len(picked) < n:
			adj /= 1.02
		default:
			points := make([][]int, len(picked))
			for i, p := range picked {
				points[i] = []int{p}
			}
			return newSchedule([]int{size}, points)
		}
	}
	return nil, fmt.Errorf("fid: poisson-gap did not converge for %d of %d points", n, size)
}

// poisson draws from a Poisson distribution with mean lambda (Knuth).
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
