package fid

// Vec is one 1-D slice of sample data with the acquisition metadata a
// processing step needs.
type Vec struct {
	Re      []float64
	Im      []float64 // nil when !Complex
	Complex bool

	DwellTime  float64 // seconds, 1/SW
	CenterFreq float64 // MHz, SF
	RefValue   float64 // ppm at the first point
	Ph0        float64
	Ph1        float64
	GroupDelay float64 // points; direct dimension only
}

// NewVec allocates a vector of n points.
func NewVec(n int, cplx bool) *Vec {
	v := &Vec{}
	v.Resize(n, cplx)
	return v
}

// Len returns the number of points.
func (v *Vec) Len() int { return len(v.Re) }

// Resize sets the vector to n zeroed points, reusing storage.
func (v *Vec) Resize(n int, cplx bool) {
	v.Re = resize(v.Re, n)
	v.Complex = cplx
	if cplx {
		v.Im = resize(v.Im, n)
	} else {
		v.Im = nil
	}
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// Complex128 returns the points as complex values; Im is zero for real
// vectors.
func (v *Vec) Complex128() []complex128 {
	out := make([]complex128, len(v.Re))
	for i, re := range v.Re {
		var im float64
		if v.Complex {
			im = v.Im[i]
		}
		out[i] = complex(re, im)
	}
	return out
}

// Interleaved returns re,im pairs for complex vectors and the real values
// otherwise.
func (v *Vec) Interleaved() []float64 {
	if !v.Complex {
		return append([]float64(nil), v.Re...)
	}
	out := make([]float64, 2*len(v.Re))
	for i := range v.Re {
		out[2*i] = v.Re[i]
		out[2*i+1] = v.Im[i]
	}
	return out
}

// SetInterleaved loads values as produced by Interleaved.
func (v *Vec) SetInterleaved(values []float64, cplx bool) {
	if !cplx {
		v.Resize(len(values), false)
		copy(v.Re, values)
		return
	}
	v.Resize(len(values)/2, true)
	for i := range v.Re {
		v.Re[i] = values[2*i]
		v.Im[i] = values[2*i+1]
	}
}
