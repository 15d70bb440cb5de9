package model

import (
	"fmt"
	"math"

	"github.com/samcharles93/tunebench/internal/tensor"
)

// maxGradNorm clips the global gradient norm before each update.
const maxGradNorm = 1.0

// decoderStep is the forward state of one target position.
type decoderStep struct {
	prev   int
	target int
	z      []float32
	a      []float32
	logits []float32
	vTrace linearTrace
}

// encoderState is the forward state of one input sequence.
type encoderState struct {
	ids    []int
	h      []float32
	q      []float32
	qTrace linearTrace
}

func (m *Seq2Seq) checkIDs(ids []int, what string) error {
	for _, id := range ids {
		if id < 0 || id >= m.cfg.VocabSize {
			return fmt.Errorf("%s token id %d outside vocabulary of %d", what, id, m.cfg.VocabSize)
		}
	}
	return nil
}

// encode averages the input embeddings and applies q_proj.
func (m *Seq2Seq) encode(ids []int) encoderState {
	d := m.cfg.DModel
	st := encoderState{ids: ids, h: make([]float32, d), q: make([]float32, d)}
	if len(ids) > 0 {
		for _, id := range ids {
			tensor.Add(st.h, m.embed.Row(id))
		}
		tensor.Scale(st.h, 1/float32(len(ids)))
	}
	st.qTrace = m.qProj.forward(st.q, st.h, m.rng, m.training)
	return st
}

// decode runs one decoder step from prev and returns its state.
func (m *Seq2Seq) decode(enc *encoderState, prev int) decoderStep {
	d, v := m.cfg.DModel, m.cfg.VocabSize
	st := decoderStep{prev: prev, z: make([]float32, d), a: make([]float32, d), logits: make([]float32, v)}
	st.vTrace = m.vProj.forward(st.z, m.embed.Row(prev), m.rng, m.training)
	tensor.Add(st.z, enc.q)
	tensor.Tanh(st.a, st.z)
	m.lmHead.forward(st.logits, st.a, m.rng, m.training)
	tensor.Add(st.logits, m.lmBias)
	return st
}

// lossAndGrad returns the summed token loss over batch and the number of
// target tokens. With grad set it accumulates gradients of the mean loss.
func (m *Seq2Seq) lossAndGrad(batch []Example, grad bool) (float64, int, error) {
	tokens := 0
	for _, ex := range batch {
		if err := m.checkIDs(ex.InputIDs, "input"); err != nil {
			return 0, 0, err
		}
		if err := m.checkIDs(ex.Labels, "label"); err != nil {
			return 0, 0, err
		}
		tokens += len(ex.Labels)
	}
	if tokens == 0 {
		return 0, 0, nil
	}
	inv := 1 / float32(tokens)

	var loss float64
	for _, ex := range batch {
		if len(ex.Labels) == 0 {
			continue
		}
		enc := m.encode(ex.InputIDs)
		steps := make([]decoderStep, len(ex.Labels))
		prev := m.cfg.DecoderStartTokenID
		for t, y := range ex.Labels {
			steps[t] = m.decode(&enc, prev)
			steps[t].target = y
			loss += tensor.LogSumExp(steps[t].logits) - float64(steps[t].logits[y])
			prev = y
		}
		if grad {
			m.backward(&enc, steps, inv)
		}
	}
	return loss, tokens, nil
}

func (m *Seq2Seq) backward(enc *encoderState, steps []decoderStep, scale float32) {
	d := m.cfg.DModel
	dq := make([]float32, d)
	for i := range steps {
		st := &steps[i]
		dl := st.logits
		tensor.Softmax(dl)
		dl[st.target]--
		tensor.Scale(dl, scale)

		if m.lmHead.trainable {
			tensor.Add(m.lmBiasGrad, dl)
		}
		da := make([]float32, d)
		m.lmHead.backward(dl, st.a, linearTrace{}, da)

		dz := da
		for j, a := range st.a {
			dz[j] *= 1 - a*a
		}
		var de []float32
		if m.embedTrainable {
			de = make([]float32, d)
		}
		m.vProj.backward(dz, m.embed.Row(st.prev), st.vTrace, de)
		if de != nil {
			tensor.Add(m.embedGrad.Row(st.prev), de)
		}
		tensor.Add(dq, dz)
	}

	var dh []float32
	if m.embedTrainable && len(enc.ids) > 0 {
		dh = make([]float32, d)
	}
	m.qProj.backward(dq, enc.h, enc.qTrace, dh)
	if dh != nil {
		tensor.Scale(dh, 1/float32(len(enc.ids)))
		for _, id := range enc.ids {
			tensor.Add(m.embedGrad.Row(id), dh)
		}
	}
}

func (m *Seq2Seq) zeroGrad() {
	m.embedGrad.Zero()
	clear(m.lmBiasGrad)
	m.qProj.zeroGrad()
	m.vProj.zeroGrad()
	m.lmHead.zeroGrad()
}

func (m *Seq2Seq) gradNorm() float64 {
	var s float64
	if m.embedTrainable {
		s += sumSquares(m.embedGrad.Data)
	}
	if m.lmHead.trainable {
		s += sumSquares(m.lmBiasGrad)
	}
	s += m.qProj.gradSquares() + m.vProj.gradSquares() + m.lmHead.gradSquares()
	return math.Sqrt(s)
}

func (m *Seq2Seq) applySGD(lr float32) {
	if m.embedTrainable {
		tensor.AddScaled(&m.embed, &m.embedGrad, -lr)
	}
	if m.lmHead.trainable {
		tensor.Axpy(m.lmBias, m.lmBiasGrad, -lr)
	}
	m.qProj.step(lr)
	m.vProj.step(lr)
	m.lmHead.step(lr)
}

func (m *Seq2Seq) TrainStep(batch []Example, lr float32) (float64, error) {
	update := m.anyTrainable()
	if update {
		m.zeroGrad()
	}
	sum, tokens, err := m.lossAndGrad(batch, update)
	if err != nil {
		return 0, err
	}
	if tokens == 0 {
		return 0, nil
	}
	loss := sum / float64(tokens)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("non-finite loss %v", loss)
	}
	if !update {
		return loss, nil
	}
	norm := m.gradNorm()
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return loss, fmt.Errorf("non-finite gradient norm %v", norm)
	}
	if norm > maxGradNorm {
		lr *= float32(maxGradNorm / norm)
	}
	m.applySGD(lr)
	return loss, nil
}

// Loss returns the mean token loss over batch without touching gradients.
func (m *Seq2Seq) Loss(batch []Example) (float64, error) {
	sum, tokens, err := m.lossAndGrad(batch, false)
	if err != nil || tokens == 0 {
		return 0, err
	}
	return sum / float64(tokens), nil
}
