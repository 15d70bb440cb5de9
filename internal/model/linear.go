package model

import (
	"math/rand/v2"

	"github.com/samcharles93/tunebench/internal/tensor"
)

// linear is y = W x, optionally plus a low-rank adapter s * B(A drop(x)).
type linear struct {
	W         tensor.Mat // [out x in]
	grad      tensor.Mat
	trainable bool
	lora      *loraAdapter
}

type loraAdapter struct {
	A, B    tensor.Mat // A [r x in], B [out x r]
	gA, gB  tensor.Mat
	scale   float32
	dropout float32
}

// linearTrace keeps what backward needs from one forward call.
type linearTrace struct {
	x    []float32 // adapter input after dropout
	mask []float32 // dropout multipliers, nil when dropout was off
	u    []float32 // A x
}

func newLinear(w tensor.Mat) *linear {
	return &linear{W: w, grad: tensor.NewMat(w.R, w.C)}
}

func (l *linear) in() int  { return l.W.C }
func (l *linear) out() int { return l.W.R }

func (l *linear) params() int {
	n := l.W.R * l.W.C
	if l.lora != nil {
		n += len(l.lora.A.Data) + len(l.lora.B.Data)
	}
	return n
}

func (l *linear) trainableParams() int {
	n := 0
	if l.trainable {
		n += l.W.R * l.W.C
	}
	if l.lora != nil {
		n += len(l.lora.A.Data) + len(l.lora.B.Data)
	}
	return n
}

func (l *linear) attachLoRA(rank int, scale, dropout float32, rng *rand.Rand) {
	a := &loraAdapter{
		A:       tensor.NewMat(rank, l.in()),
		B:       tensor.NewMat(l.out(), rank),
		gA:      tensor.NewMat(rank, l.in()),
		gB:      tensor.NewMat(l.out(), rank),
		scale:   scale,
		dropout: dropout,
	}
	tensor.FillUniform(&a.A, rng, tensor.KaimingLimit(l.in()))
	l.lora = a
}

// forward writes W x (+ adapter) into dst.
func (l *linear) forward(dst, x []float32, rng *rand.Rand, training bool) linearTrace {
	tensor.MatVec(dst, &l.W, x)
	a := l.lora
	if a == nil {
		return linearTrace{}
	}
	tr := linearTrace{x: x}
	if training && a.dropout > 0 {
		keep := 1 / (1 - a.dropout)
		tr.mask = make([]float32, len(x))
		tr.x = make([]float32, len(x))
		for i, v := range x {
			if rng.Float32() >= a.dropout {
				tr.mask[i] = keep
				tr.x[i] = v * keep
			}
		}
	}
	tr.u = make([]float32, a.A.R)
	tensor.MatVec(tr.u, &a.A, tr.x)
	tensor.MatVecAdd(dst, &a.B, tr.u, a.scale)
	return tr
}

// backward accumulates parameter gradients for the output gradient dy of a
// forward call on x. When dx is non-nil the input gradient is added to it.
func (l *linear) backward(dy, x []float32, tr linearTrace, dx []float32) {
	if l.trainable {
		tensor.AddOuter(&l.grad, dy, x, 1)
	}
	if dx != nil {
		tensor.MatTVecAdd(dx, &l.W, dy, 1)
	}
	a := l.lora
	if a == nil {
		return
	}
	tensor.AddOuter(&a.gB, dy, tr.u, a.scale)
	du := make([]float32, a.A.R)
	tensor.MatTVecAdd(du, &a.B, dy, a.scale)
	tensor.AddOuter(&a.gA, du, tr.x, 1)
	if dx != nil {
		dxa := make([]float32, len(dx))
		tensor.MatTVec(dxa, &a.A, du)
		if tr.mask != nil {
			for i := range dxa {
				dxa[i] *= tr.mask[i]
			}
		}
		tensor.Add(dx, dxa)
	}
}

func (l *linear) zeroGrad() {
	l.grad.Zero()
	if l.lora != nil {
		l.lora.gA.Zero()
		l.lora.gB.Zero()
	}
}

// gradSquares returns the squared norm of the trainable gradients.
func (l *linear) gradSquares() float64 {
	var s float64
	if l.trainable {
		s += sumSquares(l.grad.Data)
	}
	if l.lora != nil {
		s += sumSquares(l.lora.gA.Data) + sumSquares(l.lora.gB.Data)
	}
	return s
}

// step applies an SGD update with the already scaled learning rate.
func (l *linear) step(lr float32) {
	if l.trainable {
		tensor.AddScaled(&l.W, &l.grad, -lr)
	}
	if l.lora != nil {
		tensor.AddScaled(&l.lora.A, &l.lora.gA, -lr)
		tensor.AddScaled(&l.lora.B, &l.lora.gB, -lr)
	}
}

func sumSquares(x []float32) float64 {
	var s float64
	for _, v := range x {
		s += float64(v) * float64(v)
	}
	return s
}
