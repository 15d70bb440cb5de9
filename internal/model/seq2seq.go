package model

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/samcharles93/tunebench/internal/backend"
	"github.com/samcharles93/tunebench/internal/tensor"
	"github.com/samcharles93/tunebench/internal/tokenizer"
)

// Tensor names in model.safetensors.
const (
	tensorEmbed  = "shared.weight"
	tensorQProj  = "encoder.q_proj.weight"
	tensorVProj  = "decoder.v_proj.weight"
	tensorLMHead = "lm_head.weight"
	tensorLMBias = "lm_head.bias"
)

// Seq2Seq is a tiny encoder/decoder language model.
//
// The encoder averages the input token embeddings and projects them with
// q_proj. Each decoder step embeds the previous token, projects it with
// v_proj, adds the encoder state, applies tanh and maps the result to
// vocabulary logits through lm_head.
type Seq2Seq struct {
	name   string
	device string
	cfg    Config
	tok    *tokenizer.HFTokenizer
	files  tokenizer.Files

	embed          tensor.Mat // [V x d]
	embedGrad      tensor.Mat
	embedTrainable bool
	qProj          *linear // [d x d]
	vProj          *linear // [d x d]
	lmHead         *linear // [V x d]
	lmBias         []float32
	lmBiasGrad     []float32

	lora     *LoRAConfig
	training bool
	rng      *rand.Rand
}

var _ Handle = (*Seq2Seq)(nil)

// Weights holds the base parameters of a Seq2Seq.
type Weights struct {
	Embed  tensor.Mat
	QProj  tensor.Mat
	VProj  tensor.Mat
	LMHead tensor.Mat
	LMBias []float32
}

// RandomWeights initialises weights for cfg deterministically from seed.
func RandomWeights(cfg Config, seed uint64) Weights {
	rng := tensor.NewRand(seed)
	v, d := cfg.VocabSize, cfg.DModel
	w := Weights{
		Embed:  tensor.NewMat(v, d),
		QProj:  tensor.NewMat(d, d),
		VProj:  tensor.NewMat(d, d),
		LMHead: tensor.NewMat(v, d),
		LMBias: make([]float32, v),
	}
	tensor.FillUniform(&w.Embed, rng, 1)
	tensor.FillUniform(&w.QProj, rng, tensor.KaimingLimit(d))
	tensor.FillUniform(&w.VProj, rng, tensor.KaimingLimit(d))
	tensor.FillUniform(&w.LMHead, rng, tensor.KaimingLimit(d))
	return w
}

// New assembles a model from a config, weights and tokenizer files. name is
// the model identifier recorded in adapter configs.
func New(name string, cfg Config, w Weights, files tokenizer.Files) (*Seq2Seq, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v, d := cfg.VocabSize, cfg.DModel
	for _, c := range []struct {
		name string
		m    tensor.Mat
		r, c int
	}{
		{tensorEmbed, w.Embed, v, d},
		{tensorQProj, w.QProj, d, d},
		{tensorVProj, w.VProj, d, d},
		{tensorLMHead, w.LMHead, v, d},
	} {
		if c.m.R != c.r || c.m.C != c.c {
			return nil, fmt.Errorf("%s: shape [%d %d], want [%d %d]", c.name, c.m.R, c.m.C, c.r, c.c)
		}
	}
	if len(w.LMBias) != v {
		return nil, fmt.Errorf("%s: length %d, want %d", tensorLMBias, len(w.LMBias), v)
	}

	tok, err := files.Load()
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	if tok.VocabSize() > v {
		return nil, fmt.Errorf("tokenizer vocabulary %d exceeds model vocab_size %d", tok.VocabSize(), v)
	}
	if eos := tok.EOSID(); eos >= 0 && eos != cfg.EOSTokenID {
		return nil, fmt.Errorf("tokenizer eos id %d does not match eos_token_id %d", eos, cfg.EOSTokenID)
	}

	m := &Seq2Seq{
		name:       name,
		device:     backend.CPU,
		cfg:        cfg,
		tok:        tok,
		files:      files,
		embed:      w.Embed,
		embedGrad:  tensor.NewMat(v, d),
		qProj:      newLinear(w.QProj),
		vProj:      newLinear(w.VProj),
		lmHead:     newLinear(w.LMHead),
		lmBias:     w.LMBias,
		lmBiasGrad: make([]float32, v),
		rng:        tensor.NewRand(0),
	}
	m.UnfreezeAll()
	return m, nil
}

func (m *Seq2Seq) Name() string                   { return m.name }
func (m *Seq2Seq) Device() string                 { return m.device }
func (m *Seq2Seq) Config() Config                 { return m.cfg }
func (m *Seq2Seq) Tokenizer() tokenizer.Tokenizer { return m.tok }

// SetDevice records the device the model was placed on. Only the CPU is
// supported by this implementation.
func (m *Seq2Seq) SetDevice(device string) error {
	if device != backend.CPU {
		return fmt.Errorf("tiny-seq2seq runs on cpu only, got %q", device)
	}
	m.device = device
	return nil
}

// SetSeed reseeds the generator used for dropout.
func (m *Seq2Seq) SetSeed(seed uint64) {
	m.rng = tensor.NewRand(seed)
}

func (m *Seq2Seq) SetTraining(on bool) { m.training = on }

func (m *Seq2Seq) FreezeAll() {
	m.setBaseTrainable(false)
}

func (m *Seq2Seq) UnfreezeAll() {
	m.setBaseTrainable(true)
}

func (m *Seq2Seq) setBaseTrainable(on bool) {
	m.embedTrainable = on
	m.qProj.trainable = on
	m.vProj.trainable = on
	m.lmHead.trainable = on
}

type targetModule struct {
	prefix string // tensor name prefix
	l      *linear
}

// targetModules maps adapter target names to projections.
func (m *Seq2Seq) targetModules() map[string]targetModule {
	return map[string]targetModule{
		"q_proj": {"encoder.q_proj", m.qProj},
		"v_proj": {"decoder.v_proj", m.vProj},
	}
}

// InjectLoRA freezes every base parameter and attaches adapters to the
// target projections. B starts at zero so the adapted model initially
// matches the base model.
func (m *Seq2Seq) InjectLoRA(cfg LoRAConfig) error {
	if m.lora != nil {
		return fmt.Errorf("lora adapters already injected")
	}
	if cfg.Rank <= 0 || cfg.Alpha <= 0 {
		return fmt.Errorf("lora rank and alpha must be positive, got r=%d alpha=%d", cfg.Rank, cfg.Alpha)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return fmt.Errorf("lora dropout %v outside [0, 1)", cfg.Dropout)
	}
	if len(cfg.TargetModules) == 0 {
		return fmt.Errorf("lora needs at least one target module")
	}
	modules := m.targetModules()
	for _, name := range cfg.TargetModules {
		if _, ok := modules[name]; !ok {
			return fmt.Errorf("target module %q not found (available: q_proj, v_proj)", name)
		}
	}

	m.FreezeAll()
	rng := tensor.NewRand(cfg.Seed)
	targets := slices.Clone(cfg.TargetModules)
	slices.Sort(targets)
	targets = slices.Compact(targets)
	for _, name := range targets {
		modules[name].l.attachLoRA(cfg.Rank, cfg.Scaling(), float32(cfg.Dropout), rng)
	}
	cfg.TargetModules = targets
	m.lora = &cfg
	return nil
}

// LoRA returns the injected adapter config, or nil.
func (m *Seq2Seq) LoRA() *LoRAConfig {
	if m.lora == nil {
		return nil
	}
	c := *m.lora
	c.TargetModules = slices.Clone(c.TargetModules)
	return &c
}

func (m *Seq2Seq) ParamCount() (trainable, total int) {
	v, d := m.cfg.VocabSize, m.cfg.DModel
	total = v*d + v + m.qProj.params() + m.vProj.params() + m.lmHead.params()
	if m.embedTrainable {
		trainable += v * d
	}
	if m.lmHead.trainable {
		trainable += v
	}
	trainable += m.qProj.trainableParams() + m.vProj.trainableParams() + m.lmHead.trainableParams()
	return trainable, total
}

func (m *Seq2Seq) anyTrainable() bool {
	n, _ := m.ParamCount()
	return n > 0
}
