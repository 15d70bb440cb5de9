// Package sweep runs every configured model against every fine-tuning
// method and collects the scores into one report.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/tunebench/internal/backend"
	"github.com/samcharles93/tunebench/internal/dataset"
	"github.com/samcharles93/tunebench/internal/evaluate"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
	"github.com/samcharles93/tunebench/internal/preprocess"
	"github.com/samcharles93/tunebench/internal/results"
	"github.com/samcharles93/tunebench/internal/trainer"
)

// Policy decides what happens after a (model, method) pair fails.
type Policy string

const (
	// PolicyAbort stops the sweep at the first failure without a report.
	PolicyAbort Policy = "abort"
	// PolicyContinue records a failure marker and moves on.
	PolicyContinue Policy = "continue"
)

// ParsePolicy accepts "abort" and "continue". Empty means abort.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicyContinue:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (expected abort or continue)", s)
	}
}

// Provisioner loads a fresh model handle for an identifier.
type Provisioner interface {
	Provision(ctx context.Context, id string) (model.Handle, error)
}

// Runner holds everything a sweep needs besides the experiment itself.
type Runner struct {
	Provisioner Provisioner
	Trainer     trainer.Trainer
	Evaluator   evaluate.Evaluator
	DatasetsDir string
	ReportPath  string
	// Backend is the requested device, reported by the device check.
	Backend string
	Policy  Policy
	// PerModelDirs nests each method's output under a directory per model so
	// later models do not overwrite earlier ones.
	PerModelDirs bool
}

// Run executes the sweep and persists the report once at the end.
func (r Runner) Run(ctx context.Context, cfg experiment.Config) ([]results.Result, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).Named("sweep").With("run_id", runID)
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("run_id", runID))
	start := time.Now()

	r.checkDevice(log)
	log.Info("starting experiments", "models", len(cfg.Models()), "methods", len(cfg.Methods()))
	LogSummary(log, cfg)

	train, eval, err := r.loadData(ctx, cfg)
	if err != nil {
		log.Error("dataset load failed", "dataset", cfg.Dataset(), "error", err)
		return nil, err
	}
	log.Info("dataset loaded", "dataset", cfg.Dataset(), "split", cfg.DatasetSplit(), "train_records", len(train), "eval_records", len(eval))

	var out []results.Result
	for _, id := range cfg.Models() {
		for _, mc := range cfg.Methods() {
			if err := ctx.Err(); err != nil {
				log.Warn("sweep interrupted", "error", err)
				return nil, err
			}
			res, err := r.runPair(ctx, id, mc, train, eval)
			if err == nil {
				out = append(out, res)
				continue
			}
			log.Error("pair failed", "model", id, "method", mc.Name, "kind", kindName(err), "error", err)
			if r.Policy != PolicyContinue || errors.Is(err, experiment.ErrConfiguration) || ctx.Err() != nil {
				return nil, err
			}
			out = append(out, results.Result{Model: id, Method: mc.Name, Error: err.Error()})
		}
	}

	if err := results.SaveReport(r.ReportPath, out); err != nil {
		log.Error("report save failed", "path", r.ReportPath, "error", err)
		return nil, err
	}
	log.Info("experiments finished", "results", len(out), "report", r.ReportPath, "elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (r Runner) checkDevice(log logger.Logger) {
	device, err := backend.Resolve(r.Backend)
	if err != nil {
		log.Warn("device check failed", "backend", r.Backend, "error", err)
		device = backend.CPU
	}
	log.Info("device check", backend.Detect(device).LogArgs()...)
}

// LogSummary logs the models and methods an experiment will run.
func LogSummary(log logger.Logger, cfg experiment.Config) {
	log.Info("experiment summary", "dataset", cfg.Dataset(), "split", cfg.DatasetSplit())
	for _, id := range cfg.Models() {
		log.Info("model", "id", id)
	}
	for _, mc := range cfg.Methods() {
		log.Info("method", "name", mc.Name, "type", mc.Describe(), "output_dir", mc.OutputDir)
	}
}

func (r Runner) loadData(ctx context.Context, cfg experiment.Config) (train, eval []dataset.Record, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	train, err = dataset.Load(r.DatasetsDir, cfg.Dataset(), cfg.DatasetSplit())
	if err != nil {
		return nil, nil, experiment.Fail(experiment.ErrData, "load dataset", err)
	}
	if cfg.EvalSplit() == "" {
		return train, train, nil
	}
	eval, err = dataset.Load(r.DatasetsDir, cfg.Dataset(), cfg.EvalSplit())
	if err != nil {
		return nil, nil, experiment.Fail(experiment.ErrData, "load evaluation split", err)
	}
	return train, eval, nil
}

// OutputDir returns where a pair's model is saved.
func (r Runner) OutputDir(modelID string, mc experiment.MethodConfig) string {
	if !r.PerModelDirs {
		return mc.OutputDir
	}
	return filepath.Join(mc.OutputDir, strings.ReplaceAll(modelID, "/", "__"))
}

func (r Runner) runPair(ctx context.Context, id string, mc experiment.MethodConfig, train, eval []dataset.Record) (results.Result, error) {
	log := logger.FromContext(ctx).Named("sweep").With("model", id, "method", mc.Name)
	log.Info("pair started", "type", mc.Describe())

	h, err := r.Provisioner.Provision(ctx, id)
	if err != nil {
		return results.Result{}, experiment.Fail(experiment.ErrResolution, "provision "+id, err)
	}
	examples, err := preprocess.TokenizeAll(h.Tokenizer(), train, preprocess.Limits{
		MaxInputLength:  mc.MaxInputLength,
		MaxTargetLength: mc.MaxTargetLength,
	})
	if err != nil {
		return results.Result{}, err
	}
	st, err := r.Trainer.Train(ctx, h, examples, mc)
	if err != nil {
		return results.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return results.Result{}, err
	}
	ev, err := r.Evaluator.Evaluate(ctx, h, eval, mc)
	if err != nil {
		return results.Result{}, err
	}
	if _, err := results.SaveModel(ctx, h, r.OutputDir(id, mc), st); err != nil {
		return results.Result{}, err
	}
	metrics := ev.Metrics
	log.Info("pair finished", "em", metrics.ExactMatch, "f1", metrics.F1, "bleu", metrics.BLEU)
	return results.Result{Model: id, Method: mc.Name, Metrics: &metrics}, nil
}

func kindName(err error) string {
	if kind := experiment.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unclassified"
}
