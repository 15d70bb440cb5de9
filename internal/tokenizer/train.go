package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/goccy/go-json"
)

// Special tokens written by TrainByteLevel. Pad, EOS and UNK take ids 0, 1
// and 2.
const (
	PadToken = "<|pad|>"
	EOSToken = "<|endoftext|>"
	UnkToken = "<|unk|>"
)

// File names of a Hugging Face tokenizer on disk.
const (
	JSONFile   = "tokenizer.json"
	ConfigFile = "tokenizer_config.json"
)

// byteVocabBase is the number of ids taken before merges are added.
const byteVocabBase = 3 + 256

type TrainOptions struct {
	// VocabSize caps the final vocabulary, specials and byte symbols included.
	VocabSize int
	// MinFrequency is the lowest pair count still merged. Defaults to 2.
	MinFrequency int
	// ModelMaxLength is recorded in tokenizer_config.json.
	ModelMaxLength int
}

// Files holds the serialized tokenizer.json and tokenizer_config.json.
type Files struct {
	TokenizerJSON []byte
	ConfigJSON    []byte
}

// TrainByteLevel learns byte-level BPE merges from corpus. The result always
// covers every byte, so any text encodes without unknown tokens.
func TrainByteLevel(corpus []string, opts TrainOptions) (Files, error) {
	if opts.VocabSize < byteVocabBase {
		return Files{}, fmt.Errorf("vocab size %d is below the byte-level minimum %d", opts.VocabSize, byteVocabBase)
	}
	minFreq := opts.MinFrequency
	if minFreq <= 0 {
		minFreq = 2
	}

	byteEncoder, _ := bytesToUnicode()
	vocab := map[string]int{PadToken: 0, EOSToken: 1, UnkToken: 2}
	for b := 0; b < 256; b++ {
		vocab[byteEncoder[byte(b)]] = 3 + b
	}

	freqs := map[string]int{}
	pat := regexp.MustCompile(gpt2Pattern)
	for _, text := range corpus {
		for _, piece := range pat.FindAllString(text, -1) {
			var enc []byte
			for _, by := range []byte(piece) {
				enc = append(enc, byteEncoder[by]...)
			}
			freqs[string(enc)]++
		}
	}
	keys := make([]string, 0, len(freqs))
	for k := range freqs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	words := make([][]string, len(keys))
	for i, k := range keys {
		words[i] = splitRunes(k)
	}

	var merges []any
	for len(vocab) < opts.VocabSize {
		counts := map[Pair]int{}
		for i, w := range words {
			for j := 1; j < len(w); j++ {
				counts[Pair{A: w[j-1], B: w[j]}] += freqs[keys[i]]
			}
		}
		best, bestCount := Pair{}, 0
		for p, c := range counts {
			if c > bestCount || (c == bestCount && pairLess(p, best)) {
				best, bestCount = p, c
			}
		}
		if bestCount < minFreq {
			break
		}
		for i, w := range words {
			words[i] = mergePair(w, best)
		}
		merges = append(merges, best.A+" "+best.B)
		if _, ok := vocab[best.A+best.B]; !ok {
			vocab[best.A+best.B] = len(vocab)
		}
	}

	var tj hfTokenizerJSON
	tj.Version = "1.0"
	tj.Model.Type = "BPE"
	tj.Model.Vocab = vocab
	tj.Model.Merges = merges
	if tj.Model.Merges == nil {
		tj.Model.Merges = []any{}
	}
	tj.Model.UnkToken = UnkToken
	tj.PreTokenizer = hfPreTokenizer{Type: "ByteLevel"}
	tj.AddedTokens = []hfAddedToken{
		{ID: 0, Content: PadToken, Special: true},
		{ID: 1, Content: EOSToken, Special: true},
		{ID: 2, Content: UnkToken, Special: true},
	}
	tokJSON, err := json.MarshalIndent(tj, "", "  ")
	if err != nil {
		return Files{}, fmt.Errorf("encode tokenizer.json: %w", err)
	}
	cfgJSON, err := json.MarshalIndent(hfTokenizerConfig{
		AddEOS:         true,
		EOS:            EOSToken,
		Pad:            PadToken,
		Unk:            UnkToken,
		ModelMaxLength: opts.ModelMaxLength,
		TokenizerClass: "PreTrainedTokenizerFast",
	}, "", "  ")
	if err != nil {
		return Files{}, fmt.Errorf("encode tokenizer_config.json: %w", err)
	}
	return Files{TokenizerJSON: tokJSON, ConfigJSON: cfgJSON}, nil
}

func pairLess(a, b Pair) bool {
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}

// Load parses the files into a tokenizer.
func (f Files) Load() (*HFTokenizer, error) {
	return LoadHFTokenizerBytes(f.TokenizerJSON, f.ConfigJSON)
}

// Names returns the file names WriteDir writes.
func (f Files) Names() []string {
	if len(f.ConfigJSON) == 0 {
		return []string{JSONFile}
	}
	return []string{JSONFile, ConfigFile}
}

// WriteDir writes tokenizer.json and, when present, tokenizer_config.json
// into dir.
func (f Files) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, JSONFile), f.TokenizerJSON, 0o644); err != nil {
		return err
	}
	if len(f.ConfigJSON) == 0 {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, ConfigFile), f.ConfigJSON, 0o644)
}

// ReadDir loads the tokenizer files found in dir. tokenizer_config.json is
// optional.
func ReadDir(dir string) (Files, error) {
	tok, err := os.ReadFile(filepath.Join(dir, JSONFile))
	if err != nil {
		return Files{}, err
	}
	cfg, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil && !os.IsNotExist(err) {
		return Files{}, err
	}
	return Files{TokenizerJSON: tok, ConfigJSON: cfg}, nil
}
