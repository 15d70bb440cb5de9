package experiment

import (
	"fmt"
	"slices"
)

// Kind is the type tag of a fine-tuning method as written in experiment files.
type Kind string

const (
	KindFreeze       Kind = "freeze"
	KindFullFinetune Kind = "full_finetune"
	KindLoRA         Kind = "lora"
)

// Method is the closed set of parameter policies: Freeze, FullFinetune and LoRA.
// Consumers switch over the concrete types; the unexported marker keeps the set
// closed to this package.
type Method interface {
	Kind() Kind
	isMethod()
}

// Freeze marks every model parameter non-trainable.
type Freeze struct{}

// FullFinetune leaves every model parameter trainable.
type FullFinetune struct{}

// LoRA injects low-rank adapters into the target projections and freezes the
// base weights. The adapter output is scaled by Alpha / Rank.
type LoRA struct {
	Rank          int
	Alpha         int
	Dropout       float64
	TargetModules []string
}

func (Freeze) Kind() Kind       { return KindFreeze }
func (FullFinetune) Kind() Kind { return KindFullFinetune }
func (LoRA) Kind() Kind         { return KindLoRA }

func (Freeze) isMethod()       {}
func (FullFinetune) isMethod() {}
func (LoRA) isMethod()         {}

// Scaling returns alpha / rank.
func (l LoRA) Scaling() float32 {
	if l.Rank <= 0 {
		return 0
	}
	return float32(l.Alpha) / float32(l.Rank)
}

// DefaultLoRADropout and DefaultLoRATargets mirror the adapter settings used by
// the reference training setup.
const DefaultLoRADropout = 0.1

var DefaultLoRATargets = []string{"q_proj", "v_proj"}

func (l LoRA) clone() LoRA {
	l.TargetModules = slices.Clone(l.TargetModules)
	return l
}

// MethodConfig is the hyperparameter bundle for one named method.
type MethodConfig struct {
	Name            string
	Method          Method
	LearningRate    float64
	BatchSize       int
	Epochs          int
	MaxInputLength  int
	MaxTargetLength int
	OutputDir       string
	LoggingSteps    int
}

// Describe is a one-line summary used by plan output and the experiment log.
func (m MethodConfig) Describe() string {
	switch v := m.Method.(type) {
	case Freeze, FullFinetune:
		return string(v.Kind())
	case LoRA:
		return fmt.Sprintf("%s (r=%d, alpha=%d)", v.Kind(), v.Rank, v.Alpha)
	default:
		panic(fmt.Sprintf("unhandled method %T", m.Method))
	}
}

func (m MethodConfig) clone() MethodConfig {
	if l, ok := m.Method.(LoRA); ok {
		m.Method = l.clone()
	}
	return m
}
