// Package model defines the capabilities the training harness needs from a
// sequence-to-sequence model and ships one in-process implementation of them.
package model

import (
	"context"

	"github.com/samcharles93/tunebench/internal/logits"
	"github.com/samcharles93/tunebench/internal/tokenizer"
)

// Example is one tokenized (input, target) pair.
type Example struct {
	InputIDs []int
	Labels   []int
}

// LoRAConfig describes low-rank adapters injected into named projections.
type LoRAConfig struct {
	Rank          int
	Alpha         int
	Dropout       float64
	TargetModules []string
	Seed          uint64
}

// Scaling returns alpha / rank.
func (c LoRAConfig) Scaling() float32 {
	return float32(c.Alpha) / float32(c.Rank)
}

// Trainable is a model whose parameters can be selected for training and
// updated with gradient steps.
type Trainable interface {
	// FreezeAll marks every parameter non-trainable.
	FreezeAll()
	// UnfreezeAll marks every base parameter trainable.
	UnfreezeAll()
	// InjectLoRA freezes the base model and adds trainable adapters.
	InjectLoRA(cfg LoRAConfig) error
	// ParamCount returns the trainable and total parameter counts.
	ParamCount() (trainable, total int)
	// SetTraining toggles training-only behaviour such as dropout.
	SetTraining(on bool)
	// TrainStep runs forward and backward over batch, applies one SGD update
	// at lr when anything is trainable and returns the mean token loss.
	// A batch with no target tokens returns 0 and changes nothing.
	TrainStep(batch []Example, lr float32) (float64, error)
}

// GenerateOptions bounds one generation call.
type GenerateOptions struct {
	// MaxInputLength truncates the encoded input. <= 0 disables truncation.
	MaxInputLength int
	// MaxNewTokens caps the generated length. Defaults to 20.
	MaxNewTokens int
	// Sampler selects the decoding strategy. The zero value is greedy.
	Sampler logits.SamplerConfig
}

// Generation is the output of one Generate call.
type Generation struct {
	Text string
	// Tokens is the number of generated tokens, EOS excluded.
	Tokens int
	// Stopped reports whether generation ended on EOS rather than the cap.
	Stopped bool
}

// Generator produces text for a text prompt.
type Generator interface {
	Generate(ctx context.Context, input string, opts GenerateOptions) (Generation, error)
}

// Saver writes the model artifacts into a directory.
type Saver interface {
	// Save writes the artifacts into dir, creating it when needed and
	// overwriting existing files, and returns the file names written.
	Save(dir string) ([]string, error)
}

// Handle is a provisioned model with its tokenizer.
type Handle interface {
	Trainable
	Generator
	Saver
	Name() string
	Device() string
	Tokenizer() tokenizer.Tokenizer
}
