package tensor

// MatVec computes dst = w * x. dst must hold w.R values and x w.C values.
func MatVec(dst []float32, w *Mat, x []float32) {
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}
	for i := range w.R {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		j := 0
		for ; j+3 < w.C; j += 4 {
			sum += row[j]*x[j] + row[j+1]*x[j+1] + row[j+2]*x[j+2] + row[j+3]*x[j+3]
		}
		for ; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

// MatVecAdd computes dst += scale * (w * x).
func MatVecAdd(dst []float32, w *Mat, x []float32, scale float32) {
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}
	for i := range w.R {
		dst[i] += scale * Dot(w.Row(i), x[:w.C])
	}
}

// MatTVec computes dst = w^T * x without materialising the transpose.
// dst must hold w.C values and x w.R values.
func MatTVec(dst []float32, w *Mat, x []float32) {
	if len(dst) < w.C || len(x) < w.R {
		panic("matTvec shape mismatch")
	}
	clear(dst[:w.C])
	MatTVecAdd(dst, w, x, 1)
}

// MatTVecAdd computes dst += scale * (w^T * x).
func MatTVecAdd(dst []float32, w *Mat, x []float32, scale float32) {
	if len(dst) < w.C || len(x) < w.R {
		panic("matTvec shape mismatch")
	}
	for i := range w.R {
		xi := scale * x[i]
		if xi == 0 {
			continue
		}
		Axpy(dst[:w.C], w.Row(i), xi)
	}
}

// AddOuter accumulates m += scale * (a ⊗ b), where len(a) = m.R and
// len(b) = m.C. It is the weight gradient of a linear layer.
func AddOuter(m *Mat, a, b []float32, scale float32) {
	if len(a) < m.R || len(b) < m.C {
		panic("outer product shape mismatch")
	}
	for i := range m.R {
		ai := scale * a[i]
		if ai == 0 {
			continue
		}
		Axpy(m.Row(i), b[:m.C], ai)
	}
}

// AddScaled computes m += scale * g element-wise. Shapes must match.
func AddScaled(m, g *Mat, scale float32) {
	if !m.SameShape(g) {
		panic("add scaled shape mismatch")
	}
	for i := range m.R {
		Axpy(m.Row(i), g.Row(i), scale)
	}
}
