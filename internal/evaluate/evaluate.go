// Package evaluate scores a model by generating answers for held-out
// records and comparing them with the reference answers.
package evaluate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/samcharles93/tunebench/internal/dataset"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
	"github.com/samcharles93/tunebench/internal/preprocess"
)

// DefaultProgressInterval spaces progress lines during long evaluations.
const DefaultProgressInterval = 5 * time.Second

// Evaluator generates one answer per record and computes the metrics.
type Evaluator struct {
	// TokenF1 adds the multiset token F1 to the metrics.
	TokenF1 bool
	// ProgressInterval defaults to DefaultProgressInterval.
	ProgressInterval time.Duration
}

// Result is the outcome of one evaluation.
type Result struct {
	Metrics     Metrics
	Predictions []string
	References  []string
}

// Score computes the metrics for aligned predictions and references.
func (e Evaluator) Score(preds, refs []string) Metrics {
	m := Metrics{
		ExactMatch: ExactMatch(preds, refs),
		F1:         SetPrecisionF1(preds, refs),
		BLEU:       BLEU(preds, refs),
	}
	if e.TokenF1 {
		f1 := TokenF1(preds, refs)
		m.TokenF1 = &f1
	}
	return m
}

// Evaluate generates an answer for every record with g, bounded by the
// method's length limits, and scores them. Failures are ErrEvaluation.
func (e Evaluator) Evaluate(ctx context.Context, g model.Generator, recs []dataset.Record, mc experiment.MethodConfig) (Result, error) {
	log := logger.FromContext(ctx).Named("evaluate").With("method", mc.Name)
	op := "evaluate " + mc.Name
	if len(recs) == 0 {
		return Result{}, experiment.Failf(experiment.ErrEvaluation, op, "evaluation set is empty")
	}
	interval := e.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	progress := rate.Sometimes{First: 1, Interval: interval}

	opts := model.GenerateOptions{
		MaxInputLength: mc.MaxInputLength,
		MaxNewTokens:   mc.MaxTargetLength,
	}
	res := Result{
		Predictions: make([]string, 0, len(recs)),
		References:  make([]string, 0, len(recs)),
	}
	start := time.Now()
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return Result{}, experiment.Fail(experiment.ErrEvaluation, op, err)
		}
		pair := preprocess.Format(rec)
		gen, err := g.Generate(ctx, pair.Input, opts)
		if err != nil {
			log.Error("generation failed", "record", i, "error", err)
			return Result{}, experiment.Fail(experiment.ErrEvaluation, op, fmt.Errorf("record %d: %w", i, err))
		}
		res.Predictions = append(res.Predictions, gen.Text)
		res.References = append(res.References, pair.Target)
		progress.Do(func() {
			log.Info("generating", "done", i+1, "total", len(recs), "elapsed", time.Since(start).Round(time.Millisecond))
		})
	}

	res.Metrics = e.Score(res.Predictions, res.References)
	args := []any{"records", len(recs), "em", res.Metrics.ExactMatch, "f1", res.Metrics.F1, "bleu", res.Metrics.BLEU}
	if res.Metrics.TokenF1 != nil {
		args = append(args, "token_f1", *res.Metrics.TokenF1)
	}
	log.Info("evaluation finished", args...)
	return res, nil
}
