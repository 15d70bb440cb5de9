package tokenizer

// Tokenizer is the text/id mapping the training harness depends on.
type Tokenizer interface {
	// Encode tokenizes text, truncating to maxLen ids when maxLen > 0.
	Encode(text string, maxLen int) ([]int, error)
	// Decode maps ids back to text, dropping special tokens when skipSpecial.
	Decode(ids []int, skipSpecial bool) (string, error)
	EOSID() int
	PadID() int
	VocabSize() int
}

var _ Tokenizer = (*HFTokenizer)(nil)
