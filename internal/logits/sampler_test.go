package logits

import "testing"

func TestSamplerZeroConfigIsGreedy(t *testing.T) {
	t.Parallel()

	s := NewSampler(SamplerConfig{})
	if !s.Greedy() {
		t.Fatal("zero config should be greedy")
	}
	if idx := s.Sample([]float32{-1, 5, 3, 7, 2}, nil); idx != 3 {
		t.Fatalf("expected greedy index 3, got %d", idx)
	}
	if idx := s.Sample([]float32{2, 2, 1}, nil); idx != 0 {
		t.Fatalf("ties should resolve to the first index, got %d", idx)
	}
}

func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()

	cfg := SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, TopP: 0.95}
	s1, s2 := NewSampler(cfg), NewSampler(cfg)
	for range 20 {
		a := s1.Sample([]float32{0, 1, 2, 3, 4, 5}, nil)
		b := s2.Sample([]float32{0, 1, 2, 3, 4, 5}, nil)
		if a != b {
			t.Fatalf("expected deterministic sample, got %d vs %d", a, b)
		}
		if a < 2 {
			t.Fatalf("index %d is outside the top-4 candidates", a)
		}
	}
}

func TestSamplerTopP(t *testing.T) {
	t.Parallel()

	s := NewSampler(SamplerConfig{Seed: 7, Temperature: 1, TopK: 5, TopP: 0.5})
	for range 10 {
		if idx := s.Sample([]float32{10, 0, 0, 0, 0}, nil); idx != 0 {
			t.Fatalf("top-p sampling returned unexpected index %d", idx)
		}
	}
}

func TestSamplerRepeatPenalty(t *testing.T) {
	t.Parallel()

	s := NewSampler(SamplerConfig{RepeatPenalty: 4})
	logits := []float32{3, 2, -1}
	if idx := s.Sample(logits, []int{0, 0}); idx != 1 {
		t.Fatalf("penalised token still won: %d (logits %v)", idx, logits)
	}
	if logits[0] != 0.75 {
		t.Fatalf("repeated id penalised more than once: %v", logits[0])
	}
	if s.Greedy() {
		t.Fatal("a repeat penalty makes the sampler non-greedy")
	}
}
