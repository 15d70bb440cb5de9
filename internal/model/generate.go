package model

import (
	"context"
	"fmt"

	"github.com/samcharles93/tunebench/internal/logits"
)

// DefaultMaxNewTokens is the generation cap used when none is given.
const DefaultMaxNewTokens = 20

// Generate decodes a continuation of input. Dropout is never applied, the
// decoder starts from decoder_start_token_id and stops at EOS or after
// MaxNewTokens tokens. Special tokens are stripped from the returned text.
func (m *Seq2Seq) Generate(ctx context.Context, input string, opts GenerateOptions) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}
	maxNew := opts.MaxNewTokens
	if maxNew <= 0 {
		maxNew = DefaultMaxNewTokens
	}

	ids, err := m.tok.Encode(input, opts.MaxInputLength)
	if err != nil {
		return Generation{}, fmt.Errorf("encode input: %w", err)
	}
	if err := m.checkIDs(ids, "input"); err != nil {
		return Generation{}, err
	}

	training := m.training
	m.training = false
	defer func() { m.training = training }()

	sampler := logits.NewSampler(opts.Sampler)
	enc := m.encode(ids)
	out := make([]int, 0, maxNew)
	prev := m.cfg.DecoderStartTokenID
	stopped := false
	for len(out) < maxNew {
		if err := ctx.Err(); err != nil {
			return Generation{}, err
		}
		st := m.decode(&enc, prev)
		next := sampler.Sample(st.logits, out)
		if next == m.cfg.EOSTokenID {
			stopped = true
			break
		}
		out = append(out, next)
		prev = next
	}

	text, err := m.tok.Decode(out, true)
	if err != nil {
		return Generation{}, fmt.Errorf("decode output: %w", err)
	}
	return Generation{Text: text, Tokens: len(out), Stopped: stopped}, nil
}
