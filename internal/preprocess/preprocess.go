// Package preprocess turns question-answering records into model inputs.
package preprocess

import (
	"fmt"

	"github.com/samcharles93/tunebench/internal/dataset"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/model"
	"github.com/samcharles93/tunebench/internal/tokenizer"
)

// Pair is the text form of one training example.
type Pair struct {
	Input  string
	Target string
}

// Format builds the prompt and target of a record. The target is the first
// reference answer, or "" when the record has none.
func Format(rec dataset.Record) Pair {
	p := Pair{Input: fmt.Sprintf("question: %s context: %s", rec.Question, rec.Context)}
	if len(rec.Answers) > 0 {
		p.Target = rec.Answers[0]
	}
	return p
}

// Limits bounds the encoded lengths.
type Limits struct {
	MaxInputLength  int
	MaxTargetLength int
}

// Tokenize encodes one record. An empty target gives zero labels.
func Tokenize(tok tokenizer.Tokenizer, rec dataset.Record, lim Limits) (model.Example, error) {
	p := Format(rec)
	in, err := tok.Encode(p.Input, lim.MaxInputLength)
	if err != nil {
		return model.Example{}, fmt.Errorf("encode input: %w", err)
	}
	ex := model.Example{InputIDs: in, Labels: []int{}}
	if p.Target == "" {
		return ex, nil
	}
	if ex.Labels, err = tok.Encode(p.Target, lim.MaxTargetLength); err != nil {
		return model.Example{}, fmt.Errorf("encode target: %w", err)
	}
	return ex, nil
}

// TokenizeAll encodes every record. Failures are reported as ErrData with
// the offending record index.
func TokenizeAll(tok tokenizer.Tokenizer, recs []dataset.Record, lim Limits) ([]model.Example, error) {
	if lim.MaxInputLength <= 0 || lim.MaxTargetLength <= 0 {
		return nil, experiment.Failf(experiment.ErrData, "tokenize", "length limits must be positive, got %d/%d", lim.MaxInputLength, lim.MaxTargetLength)
	}
	out := make([]model.Example, len(recs))
	for i, rec := range recs {
		ex, err := Tokenize(tok, rec, lim)
		if err != nil {
			return nil, experiment.Fail(experiment.ErrData, fmt.Sprintf("tokenize record %d", i), err)
		}
		out[i] = ex
	}
	return out, nil
}

// Corpus returns the formatted inputs and non-empty targets of recs, in
// order. It is the text a fresh tokenizer is trained on.
func Corpus(recs []dataset.Record) []string {
	out := make([]string, 0, 2*len(recs))
	for _, rec := range recs {
		p := Format(rec)
		out = append(out, p.Input)
		if p.Target != "" {
			out = append(out, p.Target)
		}
	}
	return out
}
