package keyword

import (
	"math"
	"strings"
	"time"

	"github.com/hyperjump/kizuna/internal/models"
)

// ScoreWeights are the multipliers applied to each signal in the total score.
type ScoreWeights struct {
	TFIDF     float64
	Structure float64
	Recency   float64
	Length    float64
	Metadata  float64
}

// DefaultWeights returns the standard signal weights.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		TFIDF:     2.0,
		Structure: 1.5,
		Recency:   0.5,
		Length:    0.3,
		Metadata:  1.0,
	}
}

// Field weights for TF-IDF accumulation.
const (
	contentFieldWeight  = 1.0
	titleFieldWeight    = 3.0
	headingsFieldWeight = 2.0
)

// Scorer ranks notes lexically against a query.
type Scorer struct {
	tokenizer Tokenizer
	idf       *IDFCache
	weights   ScoreWeights
	now       func() time.Time
}

// NewScorer creates a scorer sharing the given tokenizer and IDF cache.
func NewScorer(tokenizer Tokenizer, idf *IDFCache, weights ScoreWeights) *Scorer {
	return &Scorer{
		tokenizer: tokenizer,
		idf:       idf,
		weights:   weights,
		now:       time.Now,
	}
}

// Score computes the total lexical score of note against the query.
func (s *Scorer) Score(note *models.Note, query string, filters models.SearchFilters) float64 {
	tokens := s.tokenizer.Tokenize(query)
	return s.weights.TFIDF*s.tfidfScore(note, tokens) +
		s.weights.Structure*s.structureScore(note, query) +
		s.weights.Recency*s.recencyScore(note) +
		s.weights.Length*s.lengthScore(note) +
		s.weights.Metadata*s.metadataScore(note, query, filters)
}

// tfidfScore accumulates tf*idf*fieldWeight over content, title, and headings.
// tf = 1 + ln(count) for tokens present in the field.
func (s *Scorer) tfidfScore(note *models.Note, tokens []string) float64 {
	headings := strings.Join(note.Headings, "\n")
	score := 0.0
	for _, tok := range tokens {
		idf := s.idf.IDF(tok)
		if idf == 0 {
			continue
		}
		score += fieldTF(s.tokenizer, note.Content, tok) * idf * contentFieldWeight
		score += fieldTF(s.tokenizer, note.Title, tok) * idf * titleFieldWeight
		score += fieldTF(s.tokenizer, headings, tok) * idf * headingsFieldWeight
	}
	return score
}

func fieldTF(t Tokenizer, text, token string) float64 {
	count := CountToken(t, text, token)
	if count == 0 {
		return 0
	}
	return 1 + math.Log(float64(count))
}

// structureScore rewards title and heading matches. An exact heading match
// stops the heading scan; substring matches keep scanning.
func (s *Scorer) structureScore(note *models.Note, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	score := 0.0

	title := strings.ToLower(note.Title)
	if title == q {
		score += 5
	} else if strings.Contains(title, q) {
		score += 3
	}

	for _, h := range note.Headings {
		heading := strings.ToLower(h)
		if heading == q {
			score += 3
			break
		}
		if strings.Contains(heading, q) {
			score += 1.5
		}
	}
	return score
}

// recencyScore rewards recently updated notes by age band.
func (s *Scorer) recencyScore(note *models.Note) float64 {
	age := s.now().Sub(note.UpdatedAt)
	switch {
	case age <= 7*24*time.Hour:
		return 1.0
	case age <= 30*24*time.Hour:
		return 0.5
	case age <= 90*24*time.Hour:
		return 0.2
	default:
		return 0
	}
}

// lengthScore penalizes stubs and rewards substantial notes.
func (s *Scorer) lengthScore(note *models.Note) float64 {
	n := len([]rune(note.Content))
	switch {
	case n < 100:
		return -1.0
	case n < 300:
		return -0.5
	case n < 1000:
		return 0
	default:
		return 0.5
	}
}

// metadataScore rewards category and tag affinity with the query and filters.
func (s *Scorer) metadataScore(note *models.Note, query string, filters models.SearchFilters) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	score := 0.0

	category := strings.ToLower(note.Category)
	if category != "" && strings.Contains(q, category) {
		score += 2
	}
	if filters.Category != "" && strings.EqualFold(note.Category, filters.Category) {
		score += 1
	}

	for _, tag := range note.Tags {
		t := strings.ToLower(tag)
		if t == q {
			score += 3
		} else if strings.Contains(q, t) || strings.Contains(t, q) {
			score += 1
		}
	}

	for _, ft := range filters.Tags {
		for _, tag := range note.Tags {
			if strings.EqualFold(tag, ft) {
				score += 0.5
				break
			}
		}
	}
	return score
}

// MatchesFilters reports whether the note passes the category/tag filters.
// Both search paths apply this as a post-filter.
func MatchesFilters(note *models.Note, filters models.SearchFilters) bool {
	if filters.Category != "" && !strings.EqualFold(note.Category, filters.Category) {
		return false
	}
	for _, ft := range filters.Tags {
		found := false
		for _, tag := range note.Tags {
			if strings.EqualFold(tag, ft) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
