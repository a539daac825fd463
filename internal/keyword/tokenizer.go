// Package keyword implements the lexical search path: tokenization, TF-IDF
// with field weighting, structural and metadata scoring, and snippet
// extraction.
package keyword

import (
	"strings"
	"unicode"
)

// Tokenizer turns text into an ordered token sequence.
type Tokenizer interface {
	Tokenize(text string) []string
}

// SimpleTokenizer lowercases and splits on anything that is not a letter or
// digit. Tokens shorter than 2 characters are discarded everywhere.
type SimpleTokenizer struct{}

// Tokenize returns the lowercased tokens of text, in order.
func (t *SimpleTokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// UniqueTokens returns the distinct tokens of text in first-seen order.
func UniqueTokens(t Tokenizer, text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range t.Tokenize(text) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// CountToken counts occurrences of token in the token sequence of text.
func CountToken(t Tokenizer, text, token string) int {
	count := 0
	for _, tok := range t.Tokenize(text) {
		if tok == token {
			count++
		}
	}
	return count
}
