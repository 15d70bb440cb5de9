package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tunebench/internal/safetensors"
	"github.com/samcharles93/tunebench/internal/tensor"
	"github.com/samcharles93/tunebench/internal/tokenizer"
)

// AdapterConfig is the adapter_config.json written for LoRA runs.
type AdapterConfig struct {
	PeftType        string   `json:"peft_type"`
	TaskType        string   `json:"task_type"`
	BaseModel       string   `json:"base_model_name_or_path"`
	R               int      `json:"r"`
	LoRAAlpha       int      `json:"lora_alpha"`
	LoRADropout     float64  `json:"lora_dropout"`
	TargetModules   []string `json:"target_modules"`
	Bias            string   `json:"bias"`
	FanInFanOut     bool     `json:"fan_in_fan_out"`
	InferenceMode   bool     `json:"inference_mode"`
	ModulesToSave   []string `json:"modules_to_save"`
	InitLoRAWeights bool     `json:"init_lora_weights"`
}

// adapterPrefix is prepended to every adapter tensor name.
const adapterPrefix = "base_model.model."

// Load reads a tiny-seq2seq model from dir. name is recorded as the model
// identifier.
func Load(dir, name string) (*Seq2Seq, error) {
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	st, err := safetensors.Open(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	v, d := cfg.VocabSize, cfg.DModel
	var w Weights
	for _, t := range []struct {
		name string
		dst  *tensor.Mat
		r, c int
	}{
		{tensorEmbed, &w.Embed, v, d},
		{tensorQProj, &w.QProj, d, d},
		{tensorVProj, &w.VProj, d, d},
		{tensorLMHead, &w.LMHead, v, d},
	} {
		m, err := tensor.LoadSafetensorsMat(st, t.name, t.r, t.c)
		if err != nil {
			return nil, err
		}
		*t.dst = m
	}
	if w.LMBias, err = tensor.LoadSafetensorsVec(st, tensorLMBias, v); err != nil {
		return nil, err
	}
	files, err := tokenizer.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	return New(name, cfg, w, files)
}

// Save writes the model into dir. Models with injected adapters save only
// the adapters in the PEFT layout; other models save their full weights.
// Tokenizer files are written in both cases.
func (m *Seq2Seq) Save(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	if m.lora != nil {
		if err := m.saveAdapter(dir); err != nil {
			return nil, err
		}
		written = append(written, AdapterConfigFile, AdapterWeightsFile)
	} else {
		if err := m.saveFull(dir); err != nil {
			return nil, err
		}
		written = append(written, ConfigFile, WeightsFile)
	}
	if err := m.files.WriteDir(dir); err != nil {
		return nil, fmt.Errorf("write tokenizer: %w", err)
	}
	return append(written, m.files.Names()...), nil
}

func (m *Seq2Seq) saveFull(dir string) error {
	if err := writeJSON(filepath.Join(dir, ConfigFile), m.cfg); err != nil {
		return err
	}
	tensors := []safetensors.Tensor{
		tensor.MatTensor(tensorEmbed, &m.embed),
		tensor.MatTensor(tensorQProj, &m.qProj.W),
		tensor.MatTensor(tensorVProj, &m.vProj.W),
		tensor.MatTensor(tensorLMHead, &m.lmHead.W),
		tensor.VecTensor(tensorLMBias, m.lmBias),
	}
	return safetensors.Write(filepath.Join(dir, WeightsFile), tensors, map[string]string{"format": "pt"})
}

func (m *Seq2Seq) saveAdapter(dir string) error {
	cfg := AdapterConfig{
		PeftType:        "LORA",
		TaskType:        "SEQ_2_SEQ_LM",
		BaseModel:       m.name,
		R:               m.lora.Rank,
		LoRAAlpha:       m.lora.Alpha,
		LoRADropout:     m.lora.Dropout,
		TargetModules:   m.lora.TargetModules,
		Bias:            "none",
		InferenceMode:   true,
		InitLoRAWeights: true,
	}
	if err := writeJSON(filepath.Join(dir, AdapterConfigFile), cfg); err != nil {
		return err
	}
	modules := m.targetModules()
	var tensors []safetensors.Tensor
	for _, name := range m.lora.TargetModules {
		t := modules[name]
		prefix := adapterPrefix + t.prefix
		tensors = append(tensors,
			tensor.MatTensor(prefix+".lora_A.weight", &t.l.lora.A),
			tensor.MatTensor(prefix+".lora_B.weight", &t.l.lora.B),
		)
	}
	return safetensors.Write(filepath.Join(dir, AdapterWeightsFile), tensors, map[string]string{"format": "pt"})
}

// LoadAdapter reads adapter_config.json and adapter_model.safetensors from
// dir and injects the stored adapters into m.
func (m *Seq2Seq) LoadAdapter(dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, AdapterConfigFile))
	if err != nil {
		return err
	}
	var ac AdapterConfig
	if err := json.Unmarshal(raw, &ac); err != nil {
		return fmt.Errorf("parse %s: %w", AdapterConfigFile, err)
	}
	if ac.PeftType != "LORA" {
		return fmt.Errorf("unsupported peft_type %q", ac.PeftType)
	}
	st, err := safetensors.Open(filepath.Join(dir, AdapterWeightsFile))
	if err != nil {
		return fmt.Errorf("open adapter weights: %w", err)
	}
	if err := m.InjectLoRA(LoRAConfig{
		Rank:          ac.R,
		Alpha:         ac.LoRAAlpha,
		Dropout:       ac.LoRADropout,
		TargetModules: ac.TargetModules,
	}); err != nil {
		return err
	}
	modules := m.targetModules()
	for _, name := range m.lora.TargetModules {
		t := modules[name]
		prefix := adapterPrefix + t.prefix
		a := t.l.lora
		if a.A, err = tensor.LoadSafetensorsMat(st, prefix+".lora_A.weight", a.A.R, a.A.C); err != nil {
			return err
		}
		if a.B, err = tensor.LoadSafetensorsMat(st, prefix+".lora_B.weight", a.B.R, a.B.C); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
