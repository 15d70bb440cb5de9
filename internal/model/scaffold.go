package model

import (
	"fmt"

	"github.com/samcharles93/tunebench/internal/tokenizer"
)

// ScaffoldOptions configures a freshly initialised model directory.
type ScaffoldOptions struct {
	// Corpus is the text the byte-level tokenizer learns merges from.
	Corpus []string
	// VocabSize caps the tokenizer vocabulary. Defaults to 512.
	VocabSize int
	// DModel is the hidden width. Defaults to 32.
	DModel int
	Seed   uint64
}

// Scaffold trains a tokenizer on opts.Corpus, initialises random weights and
// writes a loadable model into dir.
func Scaffold(dir, name string, opts ScaffoldOptions) (*Seq2Seq, error) {
	if opts.VocabSize <= 0 {
		opts.VocabSize = 512
	}
	if opts.DModel <= 0 {
		opts.DModel = 32
	}
	files, err := tokenizer.TrainByteLevel(opts.Corpus, tokenizer.TrainOptions{
		VocabSize:      opts.VocabSize,
		ModelMaxLength: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("train tokenizer: %w", err)
	}
	tok, err := files.Load()
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(tok.VocabSize(), opts.DModel, tok.PadID(), tok.EOSID())
	m, err := New(name, cfg, RandomWeights(cfg, opts.Seed), files)
	if err != nil {
		return nil, err
	}
	if _, err := m.Save(dir); err != nil {
		return nil, fmt.Errorf("save %s: %w", dir, err)
	}
	return m, nil
}
