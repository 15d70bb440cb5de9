// Package logits turns a decoder's output scores into the next token id.
package logits

import (
	"math"
	"math/rand/v2"
)

// SamplerConfig configures the behaviour of a Sampler. The zero value is
// greedy decoding.
type SamplerConfig struct {
	Seed          uint64
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	topIdx []int
	topVal []float32
	prob   []float64
	seen   map[int]struct{}
}

// NewSampler returns a sampler for cfg. Temperature <= 0 selects greedy
// decoding.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	return &Sampler{
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
		seen:   make(map[int]struct{}),
	}
}

// Greedy reports whether the sampler always returns the arg max.
func (s *Sampler) Greedy() bool {
	return s.greedy && s.cfg.RepeatPenalty <= 1
}

// Sample picks one index from logits. recent holds previously emitted ids and
// is used for the repetition penalty. logits may be modified in place.
//
// Steps: penalise recent ids, return the arg max when greedy, otherwise keep
// the TopK temperature-scaled candidates, normalise them, cut the tail at
// TopP and draw.
func (s *Sampler) Sample(logits []float32, recent []int) int {
	if len(logits) == 0 {
		return 0
	}
	if s.cfg.RepeatPenalty > 1 && len(recent) > 0 {
		s.penalize(logits, recent)
	}

	if s.greedy || (s.cfg.TopK == 1 && s.cfg.TopP >= 1 && s.cfg.Temperature == 1) {
		return argmax(logits)
	}

	k := min(s.cfg.TopK, len(logits))
	topIdx, topVal := s.topK(logits, k, 1/s.cfg.Temperature)

	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		prob[i] = math.Exp(float64(topVal[i] - topVal[0]))
		sum += prob[i]
	}
	for i := range prob {
		prob[i] /= sum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	var mass float64
	for _, p := range prob[:cut] {
		mass += p
	}
	r := s.rng.Float64() * mass
	var c float64
	for i := range cut {
		c += prob[i]
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

func (s *Sampler) penalize(logits []float32, recent []int) {
	clear(s.seen)
	start := max(len(recent)-s.cfg.RepeatLastN, 0)
	for _, id := range recent[start:] {
		if id < 0 || id >= len(logits) {
			continue
		}
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		if logits[id] > 0 {
			logits[id] /= s.cfg.RepeatPenalty
		} else {
			logits[id] *= s.cfg.RepeatPenalty
		}
	}
}

func argmax(x []float32) int {
	bestI := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[bestI] {
			bestI = i
		}
	}
	return bestI
}

// topK returns the k largest logits scaled by invTemp, largest first.
// O(V*K), which is fine for small K.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]
	for i, l := range logits {
		v := l * invTemp
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v
		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
