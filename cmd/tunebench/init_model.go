package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tunebench/internal/dataset"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
	"github.com/samcharles93/tunebench/internal/preprocess"
	"github.com/samcharles93/tunebench/internal/provision"
)

func initModelCmd() *cli.Command {
	var (
		datasetName string
		split       string
		vocabSize   int64
		dModel      int64
		seed        int64
		force       bool
	)

	return &cli.Command{
		Name:      "init-model",
		Usage:     "Create a randomly initialised model with a tokenizer trained on a dataset",
		ArgsUsage: "<vendor/name>",
		Flags: append(commonPathFlags(),
			&cli.StringFlag{
				Name:        "dataset",
				Usage:       "dataset whose text trains the tokenizer",
				Value:       experiment.DefaultDataset,
				Destination: &datasetName,
			},
			&cli.StringFlag{
				Name:        "split",
				Usage:       "split expression read for the tokenizer corpus",
				Value:       experiment.DefaultSplit,
				Destination: &split,
			},
			&cli.Int64Flag{
				Name:        "vocab-size",
				Usage:       "tokenizer vocabulary size",
				Value:       512,
				Destination: &vocabSize,
			},
			&cli.Int64Flag{
				Name:        "d-model",
				Usage:       "hidden width",
				Value:       32,
				Destination: &dModel,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "weight initialisation seed",
				Value:       1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing model directory",
				Destination: &force,
			},
		),
		Before: setupLogging,
		After:  closeLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyPathConfig(cmd, userConfig)
			id := cmd.Args().First()
			if id == "" {
				return errors.New("init-model: model id <vendor/name> is required")
			}
			p := provision.Provisioner{ModelsDir: modelsDir}
			dir, err := p.Dir(id)
			if err != nil {
				return err
			}
			if _, err := os.Stat(filepath.Join(dir, model.ConfigFile)); err == nil && !force {
				return fmt.Errorf("init-model: %s already exists (use --force to overwrite)", dir)
			}

			log := logger.FromContext(ctx).Named("init-model").With("model", id, "dir", dir)
			recs, err := dataset.Load(datasetsDir, datasetName, split)
			if err != nil {
				return experiment.Fail(experiment.ErrData, "load tokenizer corpus", err)
			}
			corpus := preprocess.Corpus(recs)
			log.Info("training tokenizer", "dataset", datasetName, "split", split, "texts", len(corpus), "vocab_size", vocabSize)

			m, err := model.Scaffold(dir, id, model.ScaffoldOptions{
				Corpus:    corpus,
				VocabSize: int(vocabSize),
				DModel:    int(dModel),
				Seed:      uint64(seed),
			})
			if err != nil {
				return err
			}
			_, total := m.ParamCount()
			log.Info("model created", "vocab_size", m.Config().VocabSize, "d_model", m.Config().DModel, "params", total)
			return nil
		},
	}
}
