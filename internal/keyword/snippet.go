package keyword

import "strings"

const (
	snippetMaxSentence   = 100
	snippetBefore        = 40
	snippetAfter         = 60
	snippetBoundaryReach = 20
)

// Snippet extracts a short excerpt of content for the query and wraps every
// matching query token in <mark> tags. Preference order: a single short
// sentence containing the whole query, then a sentence containing any query
// token, then a character window around the first match.
func Snippet(t Tokenizer, content, query string) string {
	tokens := t.Tokenize(query)
	raw := pickExcerpt(t, content, query, tokens)
	if raw == "" {
		return ""
	}
	return highlight(raw, tokens)
}

func pickExcerpt(t Tokenizer, content, query string, tokens []string) string {
	sentences := splitSentences(content)
	queryLower := strings.ToLower(strings.TrimSpace(query))

	if queryLower != "" {
		for _, sent := range sentences {
			if len([]rune(sent)) <= snippetMaxSentence &&
				strings.Contains(strings.ToLower(sent), queryLower) {
				return sent
			}
		}
	}

	for _, sent := range sentences {
		lower := strings.ToLower(sent)
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				if len([]rune(sent)) <= snippetMaxSentence {
					return sent
				}
				return window(sent, tok)
			}
		}
	}

	// No token matched anywhere; fall back to the head of the content.
	if len(sentences) > 0 {
		return truncateRunes(sentences[0], snippetMaxSentence)
	}
	return truncateRunes(content, snippetMaxSentence)
}

// splitSentences splits on Japanese sentence terminators and newlines,
// keeping the terminator with its sentence.
func splitSentences(content string) []string {
	var sentences []string
	var cur []rune
	for _, r := range content {
		switch r {
		case '。', '！', '？':
			cur = append(cur, r)
			if s := strings.TrimSpace(string(cur)); s != "" {
				sentences = append(sentences, s)
			}
			cur = cur[:0]
		case '\n':
			if s := strings.TrimSpace(string(cur)); s != "" {
				sentences = append(sentences, s)
			}
			cur = cur[:0]
		default:
			cur = append(cur, r)
		}
	}
	if s := strings.TrimSpace(string(cur)); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// window cuts a rune window around the first occurrence of token, extending
// each edge to a nearby sentence boundary when one is close.
func window(text, token string) string {
	runes := []rune(text)
	pos := indexFold(runes, token)
	if pos < 0 {
		return truncateRunes(text, snippetBefore+snippetAfter)
	}

	start := pos - snippetBefore
	if start < 0 {
		start = 0
	}
	end := pos + snippetAfter
	if end > len(runes) {
		end = len(runes)
	}

	// Extend to a sentence boundary when one lies within reach.
	for i := start; i > start-snippetBoundaryReach && i > 0; i-- {
		if isBoundary(runes[i-1]) {
			start = i
			break
		}
	}
	for i := end; i < end+snippetBoundaryReach && i < len(runes); i++ {
		if isBoundary(runes[i]) {
			end = i + 1
			break
		}
	}

	return strings.TrimSpace(string(runes[start:end]))
}

func isBoundary(r rune) bool {
	return r == '。' || r == '！' || r == '？' || r == '\n'
}

// indexFold returns the rune position of the first case-insensitive
// occurrence of needle, or -1. Positions stay aligned with the original
// runes even when lowercasing would change a rune's length.
func indexFold(haystack []rune, needle string) int {
	n := len([]rune(needle))
	if n == 0 || n > len(haystack) {
		return -1
	}
	for i := 0; i+n <= len(haystack); i++ {
		if strings.EqualFold(string(haystack[i:i+n]), needle) {
			return i
		}
	}
	return -1
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[:n]))
}

// highlight wraps each occurrence of each token in <mark> tags, token by
// token in tokenization order, matching case-insensitively.
func highlight(text string, tokens []string) string {
	for _, tok := range tokens {
		text = markToken(text, tok)
	}
	return text
}

// markToken compares rune windows with EqualFold rather than searching a
// lowercased copy: ToLower can change a rune's byte length (U+0130 becomes
// "i̇"), which would shift offsets into the original text. Tags written
// by earlier tokens are copied through whole.
func markToken(text, token string) string {
	tokRunes := []rune(token)
	if len(tokRunes) == 0 {
		return text
	}
	runes := []rune(text)
	var b strings.Builder
	inMark := false
	for i := 0; i < len(runes); {
		if tag, n := tagAt(runes[i:]); n > 0 {
			b.WriteString(tag)
			inMark = tag == "<mark>"
			i += n
			continue
		}
		if !inMark && i+len(tokRunes) <= len(runes) {
			window := string(runes[i : i+len(tokRunes)])
			if strings.EqualFold(window, token) {
				b.WriteString("<mark>")
				b.WriteString(window)
				b.WriteString("</mark>")
				i += len(tokRunes)
				continue
			}
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

// tagAt reports a literal <mark> or </mark> at the head of rs, returning the
// tag and its rune length.
func tagAt(rs []rune) (string, int) {
	for _, tag := range [...]string{"<mark>", "</mark>"} {
		if len(rs) >= len(tag) && string(rs[:len(tag)]) == tag {
			return tag, len(tag)
		}
	}
	return "", 0
}
