package search

import (
	"sort"

	"github.com/hyperjump/kizuna/internal/models"
)

// MergedHit is one note's combined contribution from both paths.
type MergedHit struct {
	NoteID        string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
	Sources       []models.SearchSource
	Snippet       string
}

// Merge combines both result sets by note id. A note present in one path
// scores weight*pathScore; present in both, the weighted contributions sum.
func Merge(keywordHits []*models.KeywordHit, semanticHits []*models.SemanticHit, wk, ws float64) []*MergedHit {
	byID := make(map[string]*MergedHit)

	for _, h := range keywordHits {
		byID[h.NoteID] = &MergedHit{
			NoteID:       h.NoteID,
			Score:        h.Score * wk,
			KeywordScore: h.Score,
			Sources:      []models.SearchSource{models.SourceKeyword},
			Snippet:      h.Snippet,
		}
	}

	for _, h := range semanticHits {
		if m, ok := byID[h.NoteID]; ok {
			m.Score += h.Score * ws
			m.SemanticScore = h.Score
			m.Sources = append(m.Sources, models.SourceSemantic)
			continue
		}
		byID[h.NoteID] = &MergedHit{
			NoteID:        h.NoteID,
			Score:         h.Score * ws,
			SemanticScore: h.Score,
			Sources:       []models.SearchSource{models.SourceSemantic},
		}
	}

	merged := make([]*MergedHit, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].NoteID < merged[j].NoteID
	})
	return merged
}
