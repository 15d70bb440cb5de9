package tokenizer

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var trainCorpus = []string{
	"question: What is the capital of France? context: Paris is the capital of France.",
	"question: Who wrote Hamlet? context: Hamlet was written by Shakespeare.",
	"the the the the cat sat on the mat",
}

func trainedTokenizer(t *testing.T, vocab int) *HFTokenizer {
	t.Helper()
	files, err := TrainByteLevel(trainCorpus, TrainOptions{VocabSize: vocab, ModelMaxLength: 128})
	if err != nil {
		t.Fatalf("TrainByteLevel: %v", err)
	}
	tok, err := files.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tok
}

func TestTrainByteLevelRoundTrip(t *testing.T) {
	t.Parallel()

	tok := trainedTokenizer(t, 300)
	if tok.VocabSize() <= byteVocabBase {
		t.Fatalf("expected merges to grow the vocab, got %d", tok.VocabSize())
	}
	if tok.PadID() != 0 || tok.EOSID() != 1 {
		t.Fatalf("unexpected specials pad=%d eos=%d", tok.PadID(), tok.EOSID())
	}

	for _, text := range []string{"the cat sat", "Zürich? 42 ünïcode", "  spaced\tout\n"} {
		ids, err := tok.Encode(text, 0)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		if ids[len(ids)-1] != tok.EOSID() {
			t.Fatalf("Encode(%q) does not end with EOS: %v", text, ids)
		}
		got, err := tok.Decode(ids, true)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != text {
			t.Fatalf("round trip: got %q want %q", got, text)
		}
	}
}

func TestTrainByteLevelIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := TrainByteLevel(trainCorpus, TrainOptions{VocabSize: 280})
	if err != nil {
		t.Fatal(err)
	}
	b, err := TrainByteLevel(trainCorpus, TrainOptions{VocabSize: 280})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(a.TokenizerJSON), string(b.TokenizerJSON)); diff != "" {
		t.Fatalf("tokenizer.json differs between runs:\n%s", diff)
	}
}

func TestTrainByteLevelRejectsSmallVocab(t *testing.T) {
	t.Parallel()
	if _, err := TrainByteLevel(trainCorpus, TrainOptions{VocabSize: 100}); err == nil {
		t.Fatal("expected error for vocab below byte-level minimum")
	}
}

func TestEncodeTruncationKeepsEOS(t *testing.T) {
	t.Parallel()

	tok := trainedTokenizer(t, 270)
	ids, err := tok.Encode(strings.Repeat("lorem ipsum ", 40), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 8 {
		t.Fatalf("expected 8 ids, got %d", len(ids))
	}
	if ids[7] != tok.EOSID() {
		t.Fatalf("expected EOS at the end, got %v", ids)
	}

	ids, err = tok.Encode("lorem", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected single id, got %v", ids)
	}
}

func TestEncodeEmptyText(t *testing.T) {
	t.Parallel()

	tok := trainedTokenizer(t, 270)
	ids, err := tok.Encode("", 16)
	if err != nil {
		t.Fatal(err)
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty non-nil ids, got %#v", ids)
	}
}

func TestDecodeSpecials(t *testing.T) {
	t.Parallel()

	tok := trainedTokenizer(t, 270)
	ids, err := tok.Encode("hi<|pad|>", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(ids, tok.PadID()) {
		t.Fatalf("special token not matched in text: %v", ids)
	}
	raw, _ := tok.Decode(ids, false)
	if raw != "hi<|pad|><|endoftext|>" {
		t.Fatalf("unexpected raw decode %q", raw)
	}
	clean, _ := tok.Decode(ids, true)
	if clean != "hi" {
		t.Fatalf("unexpected clean decode %q", clean)
	}
	if _, err := tok.Decode([]int{tok.VocabSize()}, true); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestLoadHFTokenizerConfig(t *testing.T) {
	t.Parallel()

	tokJSON := []byte(`{
		"model":{
			"type":"BPE",
			"vocab":{"<pad>":0,"</s>":1,"<unk>":2},
			"merges":[],
			"unk_token":"<unk>"
		}
	}`)
	tokConfig := []byte(`{
		"add_eos_token":true,
		"eos_token":"</s>",
		"pad_token":"<pad>"
	}`)

	tok, err := LoadHFTokenizerBytes(tokJSON, tokConfig)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok.EOSID() != 1 || tok.PadID() != 0 || tok.BOSID() != -1 {
		t.Fatalf("unexpected ids eos=%d pad=%d bos=%d", tok.EOSID(), tok.PadID(), tok.BOSID())
	}
	ids, err := tok.Encode("ab", 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 2, 1}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	ids, _ = tok.Encode("ab", 2)
	if diff := cmp.Diff([]int{2, 1}, ids); diff != "" {
		t.Fatalf("truncated ids mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsUnsupportedModel(t *testing.T) {
	t.Parallel()

	tokJSON := []byte(`{"model":{"type":"WordPiece","vocab":{},"merges":[]}}`)
	if _, err := LoadHFTokenizerBytes(tokJSON, nil); err == nil {
		t.Fatal("expected unsupported tokenizer model error")
	}
}

func TestWriteAndReadDir(t *testing.T) {
	t.Parallel()

	files, err := TrainByteLevel(trainCorpus, TrainOptions{VocabSize: 265})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := files.WriteDir(dir); err != nil {
		t.Fatal(err)
	}
	back, err := ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(files, back); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
}
