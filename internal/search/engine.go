// Package search runs hybrid (keyword + semantic) note search.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kizuna/internal/keyword"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

// Embedder produces a query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the semantic index surface the engine needs.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, limit, ef int) ([]vector.Hit, error)
}

// Default hybrid weights.
const (
	DefaultKeywordWeight  = 0.6
	DefaultSemanticWeight = 0.4
	DefaultLimit          = 10
)

// Engine fans out to both search paths and merges their results.
type Engine struct {
	notes     storage.NoteStore
	embedder  Embedder
	index     VectorSearcher
	tokenizer keyword.Tokenizer
	idf       *keyword.IDFCache
	scorer    *keyword.Scorer
	logger    *zap.Logger
}

// NewEngine creates a search engine with the given collaborators.
func NewEngine(
	notes storage.NoteStore,
	embedder Embedder,
	index VectorSearcher,
	tokenizer keyword.Tokenizer,
	idf *keyword.IDFCache,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		notes:     notes,
		embedder:  embedder,
		index:     index,
		tokenizer: tokenizer,
		idf:       idf,
		scorer:    keyword.NewScorer(tokenizer, idf, keyword.DefaultWeights()),
		logger:    logger,
	}
}

// InvalidateIDF discards the IDF cache. Called on any content-affecting
// mutation; the next search rebuilds it.
func (e *Engine) InvalidateIDF() {
	e.idf.Invalidate()
}

// Search runs both paths concurrently and merges by note id.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	normalizeQuery(query)

	notes, err := e.notes.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	var (
		keywordHits  []*models.KeywordHit
		semanticHits []*models.SemanticHit
	)

	g, gctx := errgroup.WithContext(ctx)
	if query.KeywordWeight > 0 {
		g.Go(func() error {
			keywordHits = e.keywordSearch(notes, query)
			return nil
		})
	}
	if query.SemanticWeight > 0 {
		g.Go(func() error {
			hits, err := e.semanticSearch(gctx, notes, query)
			if err != nil {
				return err
			}
			semanticHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(keywordHits, semanticHits, query.KeywordWeight, query.SemanticWeight)

	byID := make(map[string]*models.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}

	response := &models.SearchResponse{
		Results:   make([]*models.SearchResult, 0, query.Limit),
		Total:     len(merged),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query.Query,
	}
	for i, m := range merged {
		if i >= query.Limit {
			break
		}
		note, ok := byID[m.NoteID]
		if !ok {
			continue
		}
		result := &models.SearchResult{
			Note:          note,
			Score:         m.Score,
			KeywordScore:  m.KeywordScore,
			SemanticScore: m.SemanticScore,
			Sources:       m.Sources,
			Snippet:       m.Snippet,
			Rank:          len(response.Results) + 1,
		}
		response.Results = append(response.Results, result)
	}
	return response, nil
}

// keywordSearch scores every note lexically and filters by metadata.
func (e *Engine) keywordSearch(notes []*models.Note, query *models.SearchQuery) []*models.KeywordHit {
	if !e.idf.Built() {
		e.idf.Build(notes)
	}

	var hits []*models.KeywordHit
	for _, note := range notes {
		if !keyword.MatchesFilters(note, query.Filters) {
			continue
		}
		score := e.scorer.Score(note, query.Query, query.Filters)
		if score <= 0 {
			continue
		}
		hits = append(hits, &models.KeywordHit{
			NoteID:  note.ID,
			Score:   score,
			Snippet: keyword.Snippet(e.tokenizer, note.Content, query.Query),
		})
	}
	return hits
}

// semanticSearch embeds the query, queries the vector index, and post-filters
// by metadata. Scores are similarity scaled to 0..100.
func (e *Engine) semanticSearch(ctx context.Context, notes []*models.Note, query *models.SearchQuery) ([]*models.SemanticHit, error) {
	queryVec, err := e.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	raw, err := e.index.Search(ctx, queryVec, query.Limit, query.EF)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	byID := make(map[string]*models.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}

	var hits []*models.SemanticHit
	for _, r := range raw {
		note, ok := byID[r.NoteID]
		if !ok {
			continue
		}
		if !keyword.MatchesFilters(note, query.Filters) {
			continue
		}
		hits = append(hits, &models.SemanticHit{
			NoteID:     r.NoteID,
			Score:      r.Similarity * 100,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

func normalizeQuery(q *models.SearchQuery) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.KeywordWeight == 0 && q.SemanticWeight == 0 {
		q.KeywordWeight = DefaultKeywordWeight
		q.SemanticWeight = DefaultSemanticWeight
	}
}
