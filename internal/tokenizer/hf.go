package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// HFTokenizer is a byte-level BPE tokenizer loaded from a Hugging Face
// tokenizer.json (plus optional tokenizer_config.json).
type HFTokenizer struct {
	encoder      map[string]int
	decoder      []string
	bpeRanks     map[Pair]int
	byteEncoder  map[byte]string
	byteDecoder  map[string]byte
	pattern      *regexp.Regexp
	addBOS       bool
	addEOS       bool
	bosID        int
	eosID        int
	padID        int
	unkID        int
	ignoreMerges bool
	special      []string
	specialIDs   map[int]bool

	mu    sync.Mutex
	cache map[string][]string
}

type hfPreTokenizer struct {
	Type          string `json:"type"`
	Pretokenizers []struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pretokenizers,omitempty"`
}

type hfAddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type hfTokenizerJSON struct {
	Version string `json:"version,omitempty"`
	Model   struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges,omitempty"`
		UnkToken     string         `json:"unk_token,omitempty"`
	} `json:"model"`
	PreTokenizer hfPreTokenizer `json:"pre_tokenizer"`
	AddedTokens  []hfAddedToken `json:"added_tokens"`
}

type hfTokenizerConfig struct {
	AddBOS         bool   `json:"add_bos_token"`
	AddEOS         bool   `json:"add_eos_token"`
	BOS            string `json:"bos_token,omitempty"`
	EOS            string `json:"eos_token,omitempty"`
	Pad            string `json:"pad_token,omitempty"`
	Unk            string `json:"unk_token,omitempty"`
	ModelMaxLength int    `json:"model_max_length,omitempty"`
	TokenizerClass string `json:"tokenizer_class,omitempty"`
}

// LoadHFTokenizer reads tokenizer.json and, when tokConfig is non-empty and
// exists, tokenizer_config.json.
func LoadHFTokenizer(tokJSON, tokConfig string) (*HFTokenizer, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if tokConfig != "" {
		raw, err := os.ReadFile(tokConfig)
		switch {
		case err == nil:
			cfg = raw
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	return LoadHFTokenizerBytes(data, cfg)
}

func LoadHFTokenizerBytes(tokJSON []byte, tokConfig []byte) (*HFTokenizer, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model: %s", tj.Model.Type)
	}

	encoder := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := -1
	for tok, id := range tj.Model.Vocab {
		if id < 0 {
			return nil, fmt.Errorf("negative token id %d for %q", id, tok)
		}
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		if at.ID < 0 {
			return nil, fmt.Errorf("negative token id %d for %q", at.ID, at.Content)
		}
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range encoder {
		decoder[id] = tok
	}

	bpeRanks := make(map[Pair]int, len(tj.Model.Merges))
	rank := 0
	for _, raw := range tj.Model.Merges {
		p, ok := parseMerge(raw)
		if !ok {
			continue
		}
		if _, dup := bpeRanks[p]; !dup {
			bpeRanks[p] = rank
			rank++
		}
	}

	var cfg hfTokenizerConfig
	if len(tokConfig) > 0 {
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("parse tokenizer_config.json: %w", err)
		}
	}

	lookup := func(tok string) int {
		if tok == "" {
			return -1
		}
		if id, ok := encoder[tok]; ok {
			return id
		}
		return -1
	}
	unk := tj.Model.UnkToken
	if unk == "" {
		unk = cfg.Unk
	}

	specialIDs := make(map[int]bool)
	var specials []string
	for _, at := range tj.AddedTokens {
		if at.Special {
			specialIDs[at.ID] = true
			specials = append(specials, at.Content)
		}
	}
	for id, tok := range decoder {
		if isSpecialToken(tok) && !specialIDs[id] {
			specialIDs[id] = true
			specials = append(specials, tok)
		}
	}

	byteEncoder, byteDecoder := bytesToUnicode()
	return &HFTokenizer{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     bpeRanks,
		byteEncoder:  byteEncoder,
		byteDecoder:  byteDecoder,
		pattern:      buildHFPattern(tj.PreTokenizer),
		addBOS:       cfg.AddBOS,
		addEOS:       cfg.AddEOS,
		bosID:        lookup(cfg.BOS),
		eosID:        lookup(cfg.EOS),
		padID:        lookup(cfg.Pad),
		unkID:        lookup(unk),
		ignoreMerges: tj.Model.IgnoreMerges,
		special:      longestFirst(specials),
		specialIDs:   specialIDs,
		cache:        make(map[string][]string),
	}, nil
}

func parseMerge(raw any) (Pair, bool) {
	line := ""
	switch v := raw.(type) {
	case string:
		line = v
	case []any:
		if len(v) == 2 {
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if aok && bok {
				line = a + " " + b
			}
		}
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Pair{}, false
	}
	a, b, ok := strings.Cut(line, " ")
	if !ok || strings.Contains(b, " ") {
		return Pair{}, false
	}
	return Pair{A: a, B: b}, true
}

// Encode tokenizes text. When maxLen > 0 the result is truncated to at most
// maxLen ids; configured BOS/EOS tokens are kept inside that limit. Empty text
// encodes to an empty sequence without specials.
func (t *HFTokenizer) Encode(text string, maxLen int) ([]int, error) {
	if text == "" {
		return []int{}, nil
	}
	body, err := t.encodeBody(text)
	if err != nil {
		return nil, err
	}

	var prefix, suffix []int
	if t.addBOS && t.bosID >= 0 {
		prefix = append(prefix, t.bosID)
	}
	if t.addEOS && t.eosID >= 0 {
		suffix = append(suffix, t.eosID)
	}

	if maxLen > 0 {
		budget := maxLen - len(prefix) - len(suffix)
		if budget < 0 {
			// Too short to hold the specials; fall back to plain truncation.
			all := append(append(prefix, body...), suffix...)
			return all[:maxLen], nil
		}
		if len(body) > budget {
			body = body[:budget]
		}
	}

	ids := make([]int, 0, len(prefix)+len(body)+len(suffix))
	ids = append(ids, prefix...)
	ids = append(ids, body...)
	ids = append(ids, suffix...)
	return ids, nil
}

func (t *HFTokenizer) encodeBody(text string) ([]int, error) {
	var ids []int
	for _, part := range splitSpecials(text, t.special) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, token := range t.pattern.FindAllString(part.text, -1) {
			for _, bpeTok := range t.bpe(t.byteEncode(token)) {
				id, ok := t.encoder[bpeTok]
				if !ok {
					if t.unkID >= 0 {
						ids = append(ids, t.unkID)
						continue
					}
					return nil, fmt.Errorf("unknown token: %q", bpeTok)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Decode maps ids back to text. With skipSpecial, special tokens are dropped.
func (t *HFTokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		token := t.decoder[id]
		if t.specialIDs[id] {
			if !skipSpecial {
				b = append(b, token...)
			}
			continue
		}
		for _, r := range token {
			if by, ok := t.byteDecoder[string(r)]; ok {
				b = append(b, by)
			} else {
				b = append(b, string(r)...)
			}
		}
	}
	return string(b), nil
}

func (t *HFTokenizer) BOSID() int            { return t.bosID }
func (t *HFTokenizer) EOSID() int            { return t.eosID }
func (t *HFTokenizer) PadID() int            { return t.padID }
func (t *HFTokenizer) VocabSize() int        { return len(t.decoder) }
func (t *HFTokenizer) IsSpecial(id int) bool { return t.specialIDs[id] }

func (t *HFTokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *HFTokenizer) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *HFTokenizer) bpe(token string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.cache[token]; ok {
		return v
	}
	if t.ignoreMerges {
		if _, ok := t.encoder[token]; ok {
			out := []string{token}
			t.cache[token] = out
			return out
		}
	}
	word := splitRunes(token)
	for len(word) > 1 {
		bestRank := int(^uint(0) >> 1)
		bestPair := Pair{}
		found := false
		for p := range getPairs(word) {
			if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
				bestRank = rank
				bestPair = p
				found = true
			}
		}
		if !found {
			break
		}
		word = mergePair(word, bestPair)
	}
	t.cache[token] = word
	return word
}

// gpt2Pattern is the default byte-level pre-tokenization regex.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

func buildHFPattern(pre hfPreTokenizer) *regexp.Regexp {
	pat := gpt2Pattern
	if pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Lookahead is not supported by RE2; use the equivalent llama.cpp pattern.
	if strings.Contains(pat, "(?!\\S)") || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return regexp.MustCompile(gpt2Pattern)
	}
	return re
}
