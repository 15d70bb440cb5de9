package evaluate

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/tunebench/internal/dataset"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestExactMatch(t *testing.T) {
	t.Parallel()

	if got := ExactMatch([]string{"Paris "}, []string{"Paris"}); got != 1 {
		t.Fatalf("ExactMatch(trailing space) = %v, want 1", got)
	}
	if got := ExactMatch([]string{"paris", "Rome", ""}, []string{"Paris", "Rome", ""}); !approx(got, 2.0/3) {
		t.Fatalf("ExactMatch = %v, want 2/3", got)
	}
}

func TestSetPrecisionF1(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pred, ref string
		want      float64
	}{
		{"", "Paris", 0},
		{"the the city", "the city of Paris", 1},
		{"Paris France", "Paris", 0.5},
		{"Rome", "", 0},
	}
	for _, tt := range tests {
		if got := SetPrecisionF1([]string{tt.pred}, []string{tt.ref}); !approx(got, tt.want) {
			t.Errorf("SetPrecisionF1(%q, %q) = %v, want %v", tt.pred, tt.ref, got, tt.want)
		}
	}
}

func TestTokenF1(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pred, ref string
		want      float64
	}{
		{"", "", 1},
		{"", "Paris", 0},
		{"the the city", "the city of Paris", 2 * (2.0 / 3) * 0.5 / (2.0/3 + 0.5)},
		{"Paris", "Paris", 1},
		{"Rome", "Paris", 0},
	}
	for _, tt := range tests {
		if got := TokenF1([]string{tt.pred}, []string{tt.ref}); !approx(got, tt.want) {
			t.Errorf("TokenF1(%q, %q) = %v, want %v", tt.pred, tt.ref, got, tt.want)
		}
	}
}

func TestBLEU(t *testing.T) {
	t.Parallel()

	same := []string{"the cat sat on the mat", "a quick brown fox jumps"}
	if got := BLEU(same, same); !approx(got, 1) {
		t.Fatalf("BLEU(identical) = %v, want 1", got)
	}
	if got := BLEU([]string{"Paris"}, []string{"Paris"}); got != 0 {
		t.Fatalf("BLEU(single token) = %v, want 0 without smoothing", got)
	}
	if got := BLEU([]string{""}, []string{"Paris"}); got != 0 {
		t.Fatalf("BLEU(empty) = %v, want 0", got)
	}

	// Every n-gram of the prediction matches, so only the brevity penalty
	// applies: 4 predicted tokens against 6 reference tokens.
	got := BLEU([]string{"the cat sat on"}, []string{"the cat sat on the mat"})
	if want := math.Exp(1 - 6.0/4); !approx(got, want) {
		t.Fatalf("BLEU(short) = %v, want %v", got, want)
	}
}

func TestTokenize13a(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, world!", []string{"Hello", ",", "world", "!"}},
		{"It costs 1,000.50 dollars.", []string{"It", "costs", "1,000.50", "dollars", "."}},
		{"A&amp;B (x)", []string{"A", "&", "B", "(", "x", ")"}},
		{"2-3 well-known", []string{"2", "-", "3", "well-known"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Tokenize13a(tt.in)); diff != "" {
			t.Errorf("Tokenize13a(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestMetricsJSONKeyOrder(t *testing.T) {
	t.Parallel()

	f1 := 0.25
	raw, err := json.Marshal(Metrics{ExactMatch: 1, F1: 0.5, BLEU: 0, TokenF1: &f1})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"Exact Match (EM)":1,"F1 Score":0.5,"BLEU":0,"Token F1 (multiset)":0.25}`
	if string(raw) != want {
		t.Fatalf("Marshal = %s, want %s", raw, want)
	}

	var back Metrics
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if v, ok := back.Get(KeyTokenF1); !ok || v != 0.25 {
		t.Fatalf("Get(token f1) = %v, %v", v, ok)
	}
	raw, _ = json.Marshal(Metrics{})
	if strings.Contains(string(raw), KeyTokenF1) {
		t.Fatalf("disabled token F1 was written: %s", raw)
	}
}

type echoGenerator struct {
	answers map[string]string
	calls   []model.GenerateOptions
	err     error
}

func (g *echoGenerator) Generate(_ context.Context, input string, opts model.GenerateOptions) (model.Generation, error) {
	g.calls = append(g.calls, opts)
	if g.err != nil {
		return model.Generation{}, g.err
	}
	return model.Generation{Text: g.answers[input]}, nil
}

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	recs := []dataset.Record{
		{Question: "capital?", Context: "France", Answers: []string{"Paris"}},
		{Question: "none?", Context: "x"},
	}
	g := &echoGenerator{answers: map[string]string{
		"question: capital? context: France": "Paris ",
		"question: none? context: x":         "",
	}}
	mc := experiment.MethodConfig{Name: "freeze", MaxInputLength: 64, MaxTargetLength: 16}
	res, err := Evaluator{TokenF1: true}.Evaluate(testContext(), g, recs, mc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Metrics.ExactMatch != 1 || res.Metrics.F1 != 0.5 || *res.Metrics.TokenF1 != 1 {
		t.Fatalf("metrics = %+v", res.Metrics)
	}
	if diff := cmp.Diff([]string{"Paris", ""}, res.References); diff != "" {
		t.Fatalf("references (-want +got):\n%s", diff)
	}
	for _, opts := range g.calls {
		if opts.MaxNewTokens != 16 || opts.MaxInputLength != 64 || opts.Sampler.Temperature != 0 {
			t.Fatalf("generate options = %+v", opts)
		}
	}
}

func TestEvaluateFailures(t *testing.T) {
	t.Parallel()

	mc := experiment.MethodConfig{Name: "m", MaxInputLength: 8, MaxTargetLength: 8}
	if _, err := (Evaluator{}).Evaluate(testContext(), &echoGenerator{}, nil, mc); !errors.Is(err, experiment.ErrEvaluation) {
		t.Fatalf("empty set: %v", err)
	}
	recs := []dataset.Record{{Question: "q", Context: "c"}}
	if _, err := (Evaluator{}).Evaluate(testContext(), &echoGenerator{err: errors.New("oom")}, recs, mc); !errors.Is(err, experiment.ErrEvaluation) {
		t.Fatalf("generation error: %v", err)
	}
	ctx, cancel := context.WithCancel(testContext())
	cancel()
	if _, err := (Evaluator{}).Evaluate(ctx, &echoGenerator{}, recs, mc); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled: %v", err)
	}
}
