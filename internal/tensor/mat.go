package tensor

import (
	"math"
	"math/rand/v2"
)

// Mat represents a dense row-major matrix of float32 values.
//
// R and C are the number of rows and columns. Stride is the number of
// elements between the starts of two consecutive rows and equals C for every
// matrix built by this package.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Stride: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data as an r x c matrix. It panics when the length
// does not match.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{R: r, C: c, Stride: c, Data: data}
}

// Row returns a view of the i-th row. Writes through the slice update m.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// Clone returns a deep copy of m.
func (m *Mat) Clone() Mat {
	out := NewMat(m.R, m.C)
	for i := range m.R {
		copy(out.Row(i), m.Row(i))
	}
	return out
}

// Zero sets every element to 0.
func (m *Mat) Zero() {
	clear(m.Data)
}

// SameShape reports whether m and o have identical dimensions.
func (m *Mat) SameShape(o *Mat) bool {
	return m.R == o.R && m.C == o.C
}

// Shape returns []int{R, C}.
func (m *Mat) Shape() []int {
	return []int{m.R, m.C}
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FillRand fills the matrix with reproducible values in (-0.01, 0.01).
func FillRand(m *Mat, seed uint64) {
	FillUniform(m, NewRand(seed), 0.01)
}

// FillUniform fills m with values drawn uniformly from (-limit, limit).
func FillUniform(m *Mat, rng *rand.Rand, limit float32) {
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * limit
	}
}

// KaimingLimit is the uniform bound 1/sqrt(fanIn) used for adapter and
// projection initialisation.
func KaimingLimit(fanIn int) float32 {
	if fanIn <= 0 {
		return 0
	}
	return float32(1 / math.Sqrt(float64(fanIn)))
}
