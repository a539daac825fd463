package search

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/keyword"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

func newTestEngine(t *testing.T) (*Engine, *storage.SQLiteStore, *embedding.MockEmbedder, *vector.Index) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(64)
	cfg := vector.DefaultConfig()
	cfg.Dimensions = 64
	idx := vector.NewIndex(cfg, store)

	tok := &keyword.SimpleTokenizer{}
	engine := NewEngine(store, embedder, idx, tok, keyword.NewIDFCache(tok), nil)
	return engine, store, embedder, idx
}

func seedNote(t *testing.T, store *storage.SQLiteStore, id, title, content, category string, tags []string) {
	t.Helper()
	err := store.CreateNote(context.Background(), &models.Note{
		ID: id, Title: title, Content: content,
		Category: category, Tags: tags,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestKeywordOnlySearch(t *testing.T) {
	ctx := context.Background()
	engine, store, _, _ := newTestEngine(t)

	seedNote(t, store, "n1", "Raft consensus", "Raft elects a leader through randomized timeouts. Followers become candidates.", "tech", nil)
	seedNote(t, store, "n2", "Pasta recipes", "Boil water, add salt, cook the pasta until al dente.", "cooking", nil)

	resp, err := engine.Search(ctx, &models.SearchQuery{
		Query:         "raft leader",
		KeywordWeight: 1.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("no results")
	}
	if resp.Results[0].Note.ID != "n1" {
		t.Errorf("top result = %s, want n1", resp.Results[0].Note.ID)
	}
	if resp.Results[0].Rank != 1 {
		t.Errorf("rank = %d, want 1", resp.Results[0].Rank)
	}
	for _, r := range resp.Results {
		if r.Note.ID == "n2" {
			t.Error("unrelated note matched")
		}
	}
}

func TestSemanticSearchFindsSameText(t *testing.T) {
	ctx := context.Background()
	engine, store, embedder, idx := newTestEngine(t)

	texts := map[string]string{
		"n1": "goroutines and channels in go",
		"n2": "baking sourdough bread at home",
	}
	for id, text := range texts {
		seedNote(t, store, id, id, text, "", nil)
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		if err := idx.Upsert(id, vec); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := engine.Search(ctx, &models.SearchQuery{
		Query:          "goroutines and channels in go",
		SemanticWeight: 1.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("no results")
	}
	if resp.Results[0].Note.ID != "n1" {
		t.Errorf("top result = %s, want n1", resp.Results[0].Note.ID)
	}
	// Identical text, identical embedding: similarity 1, score 100.
	if resp.Results[0].SemanticScore < 99.9 {
		t.Errorf("semantic score = %v, want ~100", resp.Results[0].SemanticScore)
	}
}

func TestFiltersApplyToBothPaths(t *testing.T) {
	ctx := context.Background()
	engine, store, embedder, idx := newTestEngine(t)

	seedNote(t, store, "n1", "k8s", "kubernetes deployment strategies", "devops", []string{"infra"})
	seedNote(t, store, "n2", "k8s too", "kubernetes deployment pitfalls", "blog", nil)
	for _, id := range []string{"n1", "n2"} {
		note, _ := store.GetNote(ctx, id)
		vec, _ := embedder.Embed(ctx, note.Content)
		if err := idx.Upsert(id, vec); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := engine.Search(ctx, &models.SearchQuery{
		Query:   "kubernetes deployment",
		Filters: models.SearchFilters{Category: "devops"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Results {
		if r.Note.ID != "n1" {
			t.Errorf("filtered-out note returned: %s", r.Note.ID)
		}
	}
}

func TestDefaultWeightsApplied(t *testing.T) {
	ctx := context.Background()
	engine, store, _, _ := newTestEngine(t)
	seedNote(t, store, "n1", "solo", "a note about merge weights and defaults", "", nil)

	q := &models.SearchQuery{Query: "merge weights"}
	if _, err := engine.Search(ctx, q); err != nil {
		t.Fatal(err)
	}
	if q.KeywordWeight != DefaultKeywordWeight || q.SemanticWeight != DefaultSemanticWeight {
		t.Errorf("weights = %v/%v, want defaults", q.KeywordWeight, q.SemanticWeight)
	}
	if q.Limit != DefaultLimit {
		t.Errorf("limit = %d, want %d", q.Limit, DefaultLimit)
	}
}
