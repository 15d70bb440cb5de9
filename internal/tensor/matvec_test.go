package tensor

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/samcharles93/tunebench/internal/safetensors"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += w.Data[i*w.Stride+j] * x[j]
		}
		dst[i] = sum
	}
}

func transpose(m *Mat) Mat {
	out := NewMat(m.C, m.R)
	for i := range m.R {
		for j := range m.C {
			out.Data[j*out.Stride+i] = m.Data[i*m.Stride+j]
		}
	}
	return out
}

func closeEnough(a, b float32, tol float64) bool {
	return math.Abs(float64(a)-float64(b)) <= tol*math.Max(1, math.Abs(float64(a)))
}

func randVec(n int, seed uint64) []float32 {
	m := NewMat(1, n)
	FillUniform(&m, NewRand(seed), 1)
	return m.Data
}

func TestMatVecMatchesNaive(t *testing.T) {
	t.Parallel()

	for _, shape := range [][2]int{{1, 1}, {3, 5}, {17, 9}, {32, 64}} {
		w := NewMat(shape[0], shape[1])
		FillUniform(&w, NewRand(3), 1)
		x := randVec(shape[1], 4)

		got := make([]float32, w.R)
		want := make([]float32, w.R)
		MatVec(got, &w, x)
		matVecNaive(want, &w, x)
		for i := range want {
			if !closeEnough(want[i], got[i], 1e-5) {
				t.Fatalf("%v row %d: got %g want %g", shape, i, got[i], want[i])
			}
		}
	}
}

func TestMatTVecMatchesTranspose(t *testing.T) {
	t.Parallel()

	w := NewMat(7, 11)
	FillUniform(&w, NewRand(9), 1)
	wt := transpose(&w)
	x := randVec(7, 10)

	got := make([]float32, 11)
	for i := range got {
		got[i] = 42 // must be overwritten
	}
	want := make([]float32, 11)
	MatTVec(got, &w, x)
	matVecNaive(want, &wt, x)
	for i := range want {
		if !closeEnough(want[i], got[i], 1e-5) {
			t.Fatalf("col %d: got %g want %g", i, got[i], want[i])
		}
	}
}

func TestAddOuter(t *testing.T) {
	t.Parallel()

	m := NewMat(2, 3)
	AddOuter(&m, []float32{1, 2}, []float32{3, 4, 5}, 0.5)
	want := []float32{1.5, 2, 2.5, 3, 4, 5}
	for i := range want {
		if m.Data[i] != want[i] {
			t.Fatalf("element %d: got %g want %g", i, m.Data[i], want[i])
		}
	}

	g := m.Clone()
	AddScaled(&m, &g, -1)
	for i, v := range m.Data {
		if v != 0 {
			t.Fatalf("element %d not cancelled: %g", i, v)
		}
	}
}

func TestSoftmaxAndLogSumExp(t *testing.T) {
	t.Parallel()

	x := []float32{1000, 1000}
	if lse := LogSumExp(x); math.Abs(lse-(1000+math.Ln2)) > 1e-6 {
		t.Fatalf("LogSumExp = %v", lse)
	}
	Softmax(x)
	if x[0] != 0.5 || x[1] != 0.5 {
		t.Fatalf("Softmax = %v", x)
	}
	if Argmax([]float32{1, 3, 3, 2}) != 1 {
		t.Fatal("Argmax should pick the first maximum")
	}
	if AllFinite([]float32{1, float32(math.NaN())}) {
		t.Fatal("AllFinite accepted NaN")
	}
}

func TestFillRandDeterministic(t *testing.T) {
	t.Parallel()

	a, b := NewMat(4, 4), NewMat(4, 4)
	FillRand(&a, 7)
	FillRand(&b, 7)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatal("same seed produced different matrices")
		}
		if a.Data[i] <= -0.01 || a.Data[i] >= 0.01 {
			t.Fatalf("value %g outside (-0.01, 0.01)", a.Data[i])
		}
	}
}

func TestLoadSafetensorsShapes(t *testing.T) {
	t.Parallel()

	m := NewMat(2, 3)
	FillRand(&m, 1)
	path := filepath.Join(t.TempDir(), "m.safetensors")
	if err := safetensors.Write(path, []safetensors.Tensor{
		MatTensor("w", &m),
		VecTensor("b", []float32{1, 2}),
	}, nil); err != nil {
		t.Fatal(err)
	}
	st, err := safetensors.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := LoadSafetensorsMat(st, "w", 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range m.Data {
		if got.Data[i] != m.Data[i] {
			t.Fatalf("element %d differs", i)
		}
	}
	if _, err := LoadSafetensorsMat(st, "w", 3, 2); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if _, err := LoadSafetensorsVec(st, "b", 3); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func BenchmarkMatVec(b *testing.B) {
	w := NewMat(512, 512)
	x := make([]float32, 512)
	dst := make([]float32, 512)
	FillRand(&w, 1)

	for b.Loop() {
		MatVec(dst, &w, x)
	}
}

func BenchmarkMatTVec(b *testing.B) {
	w := NewMat(512, 512)
	x := make([]float32, 512)
	dst := make([]float32, 512)
	FillRand(&w, 1)

	for b.Loop() {
		MatTVec(dst, &w, x)
	}
}
