package embedding

import (
	"strings"
	"unicode"
)

// BERT-family special token ids and the hash bucket count for word ids.
const (
	clsTokenID   = 101
	sepTokenID   = 102
	vocabBuckets = 30000

	defaultMaxTokens = 256
)

// Tokenizer produces the three fixed-length input tensors a BERT-style
// model expects.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer splits on whitespace and hashes each word into a fixed
// vocabulary. It is not a real WordPiece tokenizer; it exists so the ONNX
// path has stable, padded inputs without shipping a vocabulary file.
type SimpleTokenizer struct{}

// Tokenize lays out [CLS] word-ids... [SEP] padded with zeros to maxTokens.
// The attention mask covers exactly the non-padding positions and token
// types are all zero (single segment).
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % vocabBuckets)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords returns the whitespace-separated words of text, nil when there
// are none.
func SplitWords(text string) []string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash of s, used for word
// ids and for seeding the mock embedder.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
