package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// ModelType is the config.json model_type of the tiny encoder/decoder.
	ModelType = "tiny-seq2seq"
	// Architecture is the config.json architectures entry.
	Architecture = "TinySeq2SeqForConditionalGeneration"

	ConfigFile         = "config.json"
	WeightsFile        = "model.safetensors"
	AdapterConfigFile  = "adapter_config.json"
	AdapterWeightsFile = "adapter_model.safetensors"
)

// ErrUnsupportedArch reports a config.json this package cannot run.
var ErrUnsupportedArch = errors.New("unsupported architecture")

// Config is the config.json of a tiny-seq2seq model.
type Config struct {
	ModelType           string   `json:"model_type"`
	Architectures       []string `json:"architectures"`
	VocabSize           int      `json:"vocab_size"`
	DModel              int      `json:"d_model"`
	PadTokenID          int      `json:"pad_token_id"`
	EOSTokenID          int      `json:"eos_token_id"`
	DecoderStartTokenID int      `json:"decoder_start_token_id"`
	TorchDtype          string   `json:"torch_dtype,omitempty"`
}

// NewConfig returns a config with the standard identity fields set.
func NewConfig(vocab, dModel, pad, eos int) Config {
	return Config{
		ModelType:           ModelType,
		Architectures:       []string{Architecture},
		VocabSize:           vocab,
		DModel:              dModel,
		PadTokenID:          pad,
		EOSTokenID:          eos,
		DecoderStartTokenID: pad,
		TorchDtype:          "float32",
	}
}

// LoadConfig reads and validates config.json.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(raw)
}

// ParseConfig decodes and validates config.json bytes.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config.json: %w", err)
	}
	if err := detectArch(cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func detectArch(cfg Config) error {
	if strings.EqualFold(strings.TrimSpace(cfg.ModelType), ModelType) {
		return nil
	}
	for _, arch := range cfg.Architectures {
		if strings.EqualFold(arch, Architecture) {
			return nil
		}
	}
	return fmt.Errorf("%w: model_type %q (architectures=%v)", ErrUnsupportedArch, cfg.ModelType, cfg.Architectures)
}

// Validate checks dimensions and special token ids.
func (c Config) Validate() error {
	var errs []error
	if c.VocabSize <= 0 {
		errs = append(errs, fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize))
	}
	if c.DModel <= 0 {
		errs = append(errs, fmt.Errorf("d_model must be positive, got %d", c.DModel))
	}
	for name, id := range map[string]int{
		"pad_token_id":           c.PadTokenID,
		"eos_token_id":           c.EOSTokenID,
		"decoder_start_token_id": c.DecoderStartTokenID,
	} {
		if id < 0 || id >= c.VocabSize {
			errs = append(errs, fmt.Errorf("%s %d outside vocabulary of %d", name, id, c.VocabSize))
		}
	}
	return errors.Join(errs...)
}
