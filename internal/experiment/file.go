package experiment

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileSpec is the on-disk shape of an experiment file.
type fileSpec struct {
	Dataset      string      `yaml:"dataset"`
	DatasetSplit string      `yaml:"dataset_split"`
	EvalSplit    string      `yaml:"eval_split"`
	Models       []string    `yaml:"models"`
	Methods      methodTable `yaml:"methods"`
}

type methodFile struct {
	Type            string   `yaml:"type"`
	LearningRate    float64  `yaml:"learning_rate"`
	BatchSize       int      `yaml:"batch_size"`
	NumEpochs       int      `yaml:"num_epochs"`
	MaxInputLength  int      `yaml:"max_input_length"`
	MaxTargetLength int      `yaml:"max_target_length"`
	OutputDir       string   `yaml:"output_dir"`
	LoggingSteps    int      `yaml:"logging_steps"`
	Rank            *int     `yaml:"rank"`
	LoRAAlpha       *int     `yaml:"lora_alpha"`
	LoRADropout     *float64 `yaml:"lora_dropout"`
	TargetModules   []string `yaml:"target_modules"`
}

// methodTable keeps the mapping order of the methods block, which is the
// order the sweep runs them in.
type methodTable []namedMethod

type namedMethod struct {
	name string
	spec methodFile
}

func (t *methodTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: methods must be a mapping of name to settings", node.Line)
	}
	out := make(methodTable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var m methodFile
		if err := val.Decode(&m); err != nil {
			return fmt.Errorf("method %q: %w", key.Value, err)
		}
		out = append(out, namedMethod{name: key.Value, spec: m})
	}
	*t = out
	return nil
}

// Load reads and validates an experiment file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, Fail(ErrConfiguration, "load experiment", err)
	}
	return Parse(data)
}

// Parse decodes an experiment document. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var f fileSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Config{}, Fail(ErrConfiguration, "parse experiment", err)
	}

	spec := Spec{
		Dataset:      f.Dataset,
		DatasetSplit: f.DatasetSplit,
		EvalSplit:    f.EvalSplit,
		Models:       f.Models,
	}
	if spec.DatasetSplit == "" {
		spec.DatasetSplit = DefaultSplit
	}

	var errs []error
	for _, nm := range f.Methods {
		mc, err := nm.spec.toMethodConfig(nm.name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		spec.Methods = append(spec.Methods, mc)
	}
	if len(errs) > 0 {
		return Config{}, Fail(ErrConfiguration, "parse experiment", errors.Join(errs...))
	}
	return New(spec)
}

func (m methodFile) toMethodConfig(name string) (MethodConfig, error) {
	mc := MethodConfig{
		Name:            name,
		LearningRate:    m.LearningRate,
		BatchSize:       m.BatchSize,
		Epochs:          m.NumEpochs,
		MaxInputLength:  m.MaxInputLength,
		MaxTargetLength: m.MaxTargetLength,
		OutputDir:       m.OutputDir,
		LoggingSteps:    m.LoggingSteps,
	}

	switch Kind(strings.ToLower(strings.TrimSpace(m.Type))) {
	case KindFreeze:
		mc.Method = Freeze{}
	case KindFullFinetune:
		mc.Method = FullFinetune{}
	case KindLoRA:
		if m.Rank == nil || m.LoRAAlpha == nil {
			return MethodConfig{}, fmt.Errorf("method %q: lora requires rank and lora_alpha", name)
		}
		l := LoRA{
			Rank:          *m.Rank,
			Alpha:         *m.LoRAAlpha,
			Dropout:       DefaultLoRADropout,
			TargetModules: slices.Clone(DefaultLoRATargets),
		}
		if m.LoRADropout != nil {
			l.Dropout = *m.LoRADropout
		}
		if len(m.TargetModules) > 0 {
			l.TargetModules = slices.Clone(m.TargetModules)
		}
		mc.Method = l
	case "":
		return MethodConfig{}, fmt.Errorf("method %q: type is required", name)
	default:
		return MethodConfig{}, fmt.Errorf("method %q: unknown type %q (expected freeze, full_finetune or lora)", name, m.Type)
	}
	return mc, nil
}
