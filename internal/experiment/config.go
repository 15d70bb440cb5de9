package experiment

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/tunebench/internal/dataset/split"
)

// Spec is the mutable description of an experiment. It is turned into an
// immutable Config by New, which validates it.
type Spec struct {
	Dataset      string
	DatasetSplit string
	// EvalSplit selects held-out records for scoring. Empty reuses the
	// training slice.
	EvalSplit string
	Models    []string
	Methods   []MethodConfig
}

// Config is a validated, read-only experiment registry. Accessors return
// copies so a Config can be shared freely.
type Config struct {
	dataset   string
	split     string
	evalSplit string
	models    []string
	methods   []MethodConfig
}

// New validates spec and returns the immutable registry. Every violation is
// reported in a single ErrConfiguration.
func New(spec Spec) (Config, error) {
	if err := validate(spec); err != nil {
		return Config{}, Fail(ErrConfiguration, "validate experiment", err)
	}
	methods := make([]MethodConfig, len(spec.Methods))
	for i, m := range spec.Methods {
		methods[i] = m.clone()
	}
	return Config{
		dataset:   strings.TrimSpace(spec.Dataset),
		split:     strings.TrimSpace(spec.DatasetSplit),
		evalSplit: strings.TrimSpace(spec.EvalSplit),
		models:    slices.Clone(spec.Models),
		methods:   methods,
	}, nil
}

func (c Config) Dataset() string      { return c.dataset }
func (c Config) DatasetSplit() string { return c.split }
func (c Config) EvalSplit() string    { return c.evalSplit }
func (c Config) Models() []string     { return slices.Clone(c.models) }

// Methods returns the method table in registry order.
func (c Config) Methods() []MethodConfig {
	out := make([]MethodConfig, len(c.methods))
	for i, m := range c.methods {
		out[i] = m.clone()
	}
	return out
}

// Method looks up a method by name.
func (c Config) Method(name string) (MethodConfig, bool) {
	for _, m := range c.methods {
		if m.Name == name {
			return m.clone(), true
		}
	}
	return MethodConfig{}, false
}

// Spec returns a mutable copy of the registry, useful for deriving variants.
func (c Config) Spec() Spec {
	return Spec{
		Dataset:      c.dataset,
		DatasetSplit: c.split,
		EvalSplit:    c.evalSplit,
		Models:       c.Models(),
		Methods:      c.Methods(),
	}
}

func validate(spec Spec) error {
	var errs []error
	if strings.TrimSpace(spec.Dataset) == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	if _, err := split.Parse(spec.DatasetSplit); err != nil {
		errs = append(errs, fmt.Errorf("dataset_split: %w", err))
	}
	if strings.TrimSpace(spec.EvalSplit) != "" {
		if _, err := split.Parse(spec.EvalSplit); err != nil {
			errs = append(errs, fmt.Errorf("eval_split: %w", err))
		}
	}

	if len(spec.Models) == 0 {
		errs = append(errs, errors.New("at least one model is required"))
	}
	seenModels := make(map[string]struct{}, len(spec.Models))
	for _, id := range spec.Models {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("model identifier is empty"))
			continue
		}
		if _, dup := seenModels[id]; dup {
			errs = append(errs, fmt.Errorf("model %q listed more than once", id))
		}
		seenModels[id] = struct{}{}
	}

	if len(spec.Methods) == 0 {
		errs = append(errs, errors.New("at least one method is required"))
	}
	seenNames := make(map[string]struct{}, len(spec.Methods))
	outputs := make(map[string]string, len(spec.Methods))
	for _, m := range spec.Methods {
		if m.Name == "" {
			errs = append(errs, errors.New("method name is empty"))
		} else if _, dup := seenNames[m.Name]; dup {
			errs = append(errs, fmt.Errorf("method %q defined more than once", m.Name))
		}
		seenNames[m.Name] = struct{}{}

		errs = append(errs, validateMethod(m)...)

		if strings.TrimSpace(m.OutputDir) == "" {
			continue
		}
		dir := filepath.Clean(m.OutputDir)
		if other, dup := outputs[dir]; dup {
			errs = append(errs, fmt.Errorf("methods %q and %q share output_dir %s", other, m.Name, dir))
			continue
		}
		outputs[dir] = m.Name
	}
	return errors.Join(errs...)
}

func validateMethod(m MethodConfig) []error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("method %q: "+format, append([]any{m.Name}, args...)...))
	}

	switch v := m.Method.(type) {
	case nil:
		bad("type is required")
	case Freeze, FullFinetune:
	case LoRA:
		if v.Rank <= 0 {
			bad("lora rank must be a positive integer")
		}
		if v.Alpha <= 0 {
			bad("lora_alpha must be a positive integer")
		}
		if v.Dropout < 0 || v.Dropout >= 1 {
			bad("lora_dropout must be in [0, 1)")
		}
		if len(v.TargetModules) == 0 {
			bad("lora target_modules is empty")
		}
	default:
		bad("unsupported method %T", v)
	}

	if !(m.LearningRate > 0) {
		bad("learning_rate must be positive")
	}
	if m.BatchSize <= 0 {
		bad("batch_size must be positive")
	}
	if m.Epochs <= 0 {
		bad("num_epochs must be positive")
	}
	if m.MaxInputLength <= 0 {
		bad("max_input_length must be positive")
	}
	if m.MaxTargetLength <= 0 {
		bad("max_target_length must be positive")
	}
	if m.LoggingSteps <= 0 {
		bad("logging_steps must be positive")
	}
	if strings.TrimSpace(m.OutputDir) == "" {
		bad("output_dir is required")
	}
	return errs
}
