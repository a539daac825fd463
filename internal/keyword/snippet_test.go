package keyword

import (
	"strings"
	"testing"
)

func TestSnippetPrefersWholeQuerySentence(t *testing.T) {
	tok := &SimpleTokenizer{}
	content := "First sentence about nothing.\nGo channels make concurrency simple.\nAnother line."
	got := Snippet(tok, content, "channels concurrency")
	if !strings.Contains(got, "<mark>channels</mark>") {
		t.Errorf("snippet missing highlighted token: %q", got)
	}
	if !strings.Contains(got, "<mark>concurrency</mark>") {
		t.Errorf("snippet missing second token: %q", got)
	}
	if strings.Contains(got, "First sentence") {
		t.Errorf("snippet picked wrong sentence: %q", got)
	}
}

func TestSnippetJapaneseSentenceSplit(t *testing.T) {
	tok := &SimpleTokenizer{}
	content := "これは無関係な文です。goroutineはとても便利です。最後の文。"
	got := Snippet(tok, content, "goroutine")
	if !strings.Contains(got, "<mark>goroutine</mark>") {
		t.Errorf("snippet = %q, want highlighted goroutine", got)
	}
	if strings.Contains(got, "無関係") {
		t.Errorf("snippet includes unrelated sentence: %q", got)
	}
}

func TestSnippetWindowForLongSentence(t *testing.T) {
	tok := &SimpleTokenizer{}
	long := strings.Repeat("padding ", 30) + "needle" + strings.Repeat(" trailing", 30)
	got := Snippet(tok, long, "needle")
	if !strings.Contains(got, "<mark>needle</mark>") {
		t.Errorf("snippet = %q, want highlighted needle", got)
	}
	if len([]rune(got)) > 200 {
		t.Errorf("window snippet too long: %d runes", len([]rune(got)))
	}
}

func TestSnippetCaseInsensitiveHighlight(t *testing.T) {
	tok := &SimpleTokenizer{}
	got := Snippet(tok, "Redis is fast. REDIS is everywhere.", "redis")
	if !strings.Contains(got, "<mark>Redis</mark>") && !strings.Contains(got, "<mark>REDIS</mark>") {
		t.Errorf("original casing not preserved in highlight: %q", got)
	}
}

func TestSnippetHighlightAfterLengthChangingLowercase(t *testing.T) {
	tok := &SimpleTokenizer{}
	// Lowercasing U+0130 yields more bytes than the original rune, so any
	// offsets computed on a lowered copy would land mid-rune here.
	got := Snippet(tok, "İ stanbul", "stanbul")
	if got != "İ <mark>stanbul</mark>" {
		t.Errorf("snippet = %q, want %q", got, "İ <mark>stanbul</mark>")
	}

	got = Snippet(tok, "İİİ merkez notu", "merkez")
	if !strings.Contains(got, "<mark>merkez</mark>") {
		t.Errorf("snippet = %q, want merkez highlighted intact", got)
	}
	if strings.Contains(got, "<mark>merkez</mark>i") || !strings.Contains(got, "notu") {
		t.Errorf("highlight misaligned: %q", got)
	}
}

func TestSnippetNoMatchFallsBackToHead(t *testing.T) {
	tok := &SimpleTokenizer{}
	got := Snippet(tok, "Some opening text. More text follows.", "zzz")
	if got == "" {
		t.Error("snippet empty for non-matching query")
	}
	if strings.Contains(got, "<mark>") {
		t.Errorf("unexpected highlight without matches: %q", got)
	}
}
