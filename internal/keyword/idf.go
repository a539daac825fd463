package keyword

import (
	"math"
	"sync"

	"github.com/hyperjump/kizuna/internal/models"
)

// IDFCache holds inverse document frequencies over note content. It is built
// lazily on first use and rebuilt from scratch after Invalidate. Callers must
// invalidate on any content-affecting mutation; a stale cache only skews
// ranking, it never breaks correctness.
type IDFCache struct {
	tokenizer Tokenizer

	mu        sync.Mutex
	built     bool
	totalDocs int
	docFreq   map[string]int
}

// NewIDFCache creates an empty cache using the given tokenizer.
func NewIDFCache(tokenizer Tokenizer) *IDFCache {
	return &IDFCache{tokenizer: tokenizer}
}

// Build computes document frequencies from the unique content tokens of each
// note and marks the cache built.
func (c *IDFCache) Build(notes []*models.Note) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalDocs = len(notes)
	c.docFreq = make(map[string]int)
	for _, note := range notes {
		for _, tok := range UniqueTokens(c.tokenizer, note.Content) {
			c.docFreq[tok]++
		}
	}
	c.built = true
}

// Built reports whether the cache holds current frequencies.
func (c *IDFCache) Built() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.built
}

// Invalidate discards the cache; the next search rebuilds it.
func (c *IDFCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.built = false
	c.docFreq = nil
	c.totalDocs = 0
}

// IDF returns ln(totalDocs / docFrequency(token)), or 0 for unseen tokens.
func (c *IDFCache) IDF(token string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	df := c.docFreq[token]
	if df == 0 || c.totalDocs == 0 {
		return 0
	}
	return math.Log(float64(c.totalDocs) / float64(df))
}
