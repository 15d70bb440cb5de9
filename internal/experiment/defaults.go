package experiment

import (
	"fmt"
	"path/filepath"
	"slices"
)

const (
	DefaultDataset    = "squad"
	DefaultSplit      = "train[:1%]"
	DefaultOutputRoot = "./results"
	DefaultReportPath = "./results/experiment_results.json"
)

// DefaultModels are compared when no experiment file is given.
var DefaultModels = []string{
	"google/flan-t5-small",
	"google/flan-t5-base",
	"google/flan-t5-large",
}

// Default returns the built-in registry: three model sizes against freeze,
// full fine-tuning and LoRA at ranks 4, 8 and 16 (alpha = 4 x rank).
func Default() Config {
	base := func(name, dir string, m Method) MethodConfig {
		return MethodConfig{
			Name:            name,
			Method:          m,
			LearningRate:    5e-5,
			BatchSize:       4,
			Epochs:          1,
			MaxInputLength:  128,
			MaxTargetLength: 128,
			OutputDir:       filepath.Join(DefaultOutputRoot, dir),
			LoggingSteps:    50,
		}
	}
	lora := func(rank int) MethodConfig {
		name := fmt.Sprintf("lora_rank_%d", rank)
		return base(name, name, LoRA{
			Rank:          rank,
			Alpha:         4 * rank,
			Dropout:       DefaultLoRADropout,
			TargetModules: slices.Clone(DefaultLoRATargets),
		})
	}

	cfg, err := New(Spec{
		Dataset:      DefaultDataset,
		DatasetSplit: DefaultSplit,
		Models:       slices.Clone(DefaultModels),
		Methods: []MethodConfig{
			base("freeze", "freeze", Freeze{}),
			base("full_finetune", "finetune", FullFinetune{}),
			lora(4),
			lora(8),
			lora(16),
		},
	})
	if err != nil {
		panic(fmt.Sprintf("default experiment is invalid: %v", err))
	}
	return cfg
}
