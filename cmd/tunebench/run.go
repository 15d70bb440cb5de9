package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tunebench/internal/evaluate"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/provision"
	"github.com/samcharles93/tunebench/internal/results"
	"github.com/samcharles93/tunebench/internal/sweep"
	"github.com/samcharles93/tunebench/internal/trainer"
)

func runCmd() *cli.Command {
	var (
		experimentPath string
		resultsPath    string
		policy         string
		seed           int64
		perModelDirs   bool
		tokenF1        bool
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Fine-tune and evaluate every model with every method",
		Flags: append(commonPathFlags(),
			&cli.StringFlag{
				Name:        "experiment",
				Aliases:     []string{"e"},
				Usage:       "experiment YAML file (default: built-in registry)",
				Destination: &experimentPath,
			},
			&cli.StringFlag{
				Name:        "results",
				Aliases:     []string{"o"},
				Usage:       "path of the aggregate report",
				Destination: &resultsPath,
			},
			&cli.StringFlag{
				Name:        "failure-policy",
				Usage:       "what to do when a model/method pair fails (abort, continue)",
				Value:       string(sweep.PolicyAbort),
				Destination: &policy,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "seed for shuffling and adapter initialisation",
				Value:       trainer.DefaultSeed,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "per-model-dirs",
				Usage:       "save each model under <output_dir>/<vendor>__<name>",
				Destination: &perModelDirs,
			},
			&cli.BoolFlag{
				Name:        "token-f1",
				Usage:       "also report multiset token F1",
				Destination: &tokenF1,
			},
		),
		Before: setupLogging,
		After:  closeLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, userConfig, &experimentPath, &resultsPath, &policy, &seed)
			log := logger.FromContext(ctx)

			cfg, source, err := loadExperiment(experimentPath)
			if err != nil {
				return err
			}
			pol, err := sweep.ParsePolicy(policy)
			if err != nil {
				return err
			}
			log.Info("experiment loaded", "source", source, "policy", pol)

			r := sweep.Runner{
				Provisioner:  provision.Provisioner{ModelsDir: modelsDir, Backend: backendName},
				Trainer:      trainer.Trainer{Seed: uint64(seed)},
				Evaluator:    evaluate.Evaluator{TokenF1: tokenF1},
				DatasetsDir:  datasetsDir,
				ReportPath:   resolveResultsPath(resultsPath),
				Backend:      backendName,
				Policy:       pol,
				PerModelDirs: perModelDirs,
			}
			out, err := r.Run(ctx, cfg)
			if err != nil {
				return err
			}
			return printResults(os.Stdout, out)
		},
	}
}

func printResults(w io.Writer, out []results.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODEL\tMETHOD\tEM\tF1\tBLEU")
	for _, r := range out {
		if r.Failed() {
			_, _ = fmt.Fprintf(tw, "%s\t%s\tfailed: %s\t\t\n", r.Model, r.Method, r.Error)
			continue
		}
		m := r.Metrics
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%.4f\n", r.Model, r.Method, m.ExactMatch, m.F1, m.BLEU)
	}
	return tw.Flush()
}
