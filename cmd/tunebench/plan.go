package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/sweep"
)

func planCmd() *cli.Command {
	var (
		experimentPath string
		perModelDirs   bool
	)

	return &cli.Command{
		Name:  "plan",
		Usage: "Print the resolved experiment without running it",
		Flags: append(commonPathFlags(),
			&cli.StringFlag{
				Name:        "experiment",
				Aliases:     []string{"e"},
				Usage:       "experiment YAML file (default: built-in registry)",
				Destination: &experimentPath,
			},
			&cli.BoolFlag{
				Name:        "per-model-dirs",
				Usage:       "show output directories nested per model",
				Destination: &perModelDirs,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			userConfig = LoadConfig()
			applyPathConfig(cmd, userConfig)
			if userConfig.Experiment != "" && !cmd.IsSet("experiment") {
				experimentPath = userConfig.Experiment
			}

			cfg, source, err := loadExperiment(experimentPath)
			if err != nil {
				return err
			}
			local, _ := discoverModels(modelsDir)
			return printPlan(os.Stdout, cfg, source, local, sweep.Runner{PerModelDirs: perModelDirs})
		},
	}
}

func printPlan(w io.Writer, cfg experiment.Config, source string, local []string, r sweep.Runner) error {
	evalSplit := cfg.EvalSplit()
	if evalSplit == "" {
		evalSplit = cfg.DatasetSplit() + " (training slice)"
	}
	_, _ = fmt.Fprintf(w, "experiment: %s\n", source)
	_, _ = fmt.Fprintf(w, "dataset:    %s\n", cfg.Dataset())
	_, _ = fmt.Fprintf(w, "split:      %s\n", cfg.DatasetSplit())
	_, _ = fmt.Fprintf(w, "evaluation: %s\n\n", evalSplit)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODEL\tMETHOD\tTYPE\tOUTPUT\tLOCAL")
	for _, id := range cfg.Models() {
		present := "no"
		if slices.Contains(local, id) {
			present = "yes"
		}
		for _, mc := range cfg.Methods() {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, mc.Name, mc.Describe(), r.OutputDir(id, mc), present)
		}
	}
	return tw.Flush()
}
