package vector

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/hyperjump/kizuna/internal/models"
)

type memSource struct {
	embs []*models.Embedding
}

func (s *memSource) AllEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	return s.embs, nil
}

func testConfig(dim int) Config {
	return Config{Dimensions: dim, Capacity: 1000, M: 16, EfConstruction: 200, EfSearch: 50}
}

func axisVec(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestIndex_UpsertRemoveStats(t *testing.T) {
	idx := NewIndex(testConfig(8), &memSource{})

	n := 10
	for i := 0; i < n; i++ {
		if err := idx.Upsert(fmt.Sprintf("note-%d", i), axisVec(8, i%8)); err != nil {
			t.Fatal(err)
		}
	}
	k := 3
	for i := 0; i < k; i++ {
		idx.Remove(fmt.Sprintf("note-%d", i))
	}

	stats := idx.Stats()
	if stats.Live != n-k {
		t.Errorf("live = %d, want %d", stats.Live, n-k)
	}
	if stats.Tombstones != k {
		t.Errorf("tombstones = %d, want %d", stats.Tombstones, k)
	}
	want := float64(k) / float64(n)
	if math.Abs(stats.DeletedRatio-want) > 1e-9 {
		t.Errorf("deletedRatio = %v, want %v", stats.DeletedRatio, want)
	}
	if !idx.ShouldRebuild() {
		t.Errorf("ShouldRebuild = false at ratio %v, want true", want)
	}
}

func TestIndex_ShouldRebuildThreshold(t *testing.T) {
	idx := NewIndex(testConfig(4), &memSource{})
	for i := 0; i < 5; i++ {
		if err := idx.Upsert(fmt.Sprintf("n%d", i), axisVec(4, i%4)); err != nil {
			t.Fatal(err)
		}
	}
	idx.Remove("n0")
	// 1/5 = 0.2 is not strictly greater than the threshold.
	if idx.ShouldRebuild() {
		t.Error("ShouldRebuild = true at exactly 0.2")
	}
	idx.Remove("n1")
	if !idx.ShouldRebuild() {
		t.Error("ShouldRebuild = false at 0.4")
	}
}

func TestIndex_SearchExcludesRemoved(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(testConfig(4), &memSource{})

	ids := []string{"a", "b", "c", "d"}
	for i, id := range ids {
		if err := idx.Upsert(id, axisVec(4, i)); err != nil {
			t.Fatal(err)
		}
	}
	idx.Remove("b")

	hits, err := idx.Search(ctx, axisVec(4, 1), 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.NoteID == "b" {
			t.Fatal("search returned a removed note")
		}
	}
}

func TestIndex_LinearScanFallback(t *testing.T) {
	ctx := context.Background()
	src := &memSource{embs: []*models.Embedding{
		{NoteID: "x", Vector: axisVec(4, 0)},
		{NoteID: "y", Vector: axisVec(4, 1)},
	}}
	idx := NewIndex(testConfig(4), src)

	// Uninitialized index: no error, falls back to a scan over the source.
	hits, err := idx.Search(ctx, axisVec(4, 1), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].NoteID != "y" {
		t.Fatalf("fallback hits = %+v, want [y]", hits)
	}
}

func TestIndex_BuildCompactsTombstones(t *testing.T) {
	ctx := context.Background()
	src := &memSource{embs: []*models.Embedding{
		{NoteID: "a", Vector: axisVec(4, 0)},
		{NoteID: "b", Vector: axisVec(4, 1)},
	}}
	idx := NewIndex(testConfig(4), src)

	for i, id := range []string{"a", "b", "c"} {
		if err := idx.Upsert(id, axisVec(4, i)); err != nil {
			t.Fatal(err)
		}
	}
	idx.Remove("c")

	if err := idx.Build(ctx); err != nil {
		t.Fatal(err)
	}
	stats := idx.Stats()
	if stats.Tombstones != 0 {
		t.Errorf("tombstones after build = %d, want 0", stats.Tombstones)
	}
	if stats.Live != 2 {
		t.Errorf("live after build = %d, want 2", stats.Live)
	}

	hits, err := idx.Search(ctx, axisVec(4, 0), 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].NoteID != "a" {
		t.Fatalf("hits after build = %+v, want a first", hits)
	}
}

func TestIndex_SearchDuringBuild(t *testing.T) {
	ctx := context.Background()
	embs := make([]*models.Embedding, 0, 8)
	for i := 0; i < 8; i++ {
		embs = append(embs, &models.Embedding{NoteID: fmt.Sprintf("n%d", i), Vector: axisVec(8, i)})
	}
	idx := NewIndex(testConfig(8), &memSource{embs: embs})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if err := idx.Build(ctx); err != nil && err != ErrBuildInProgress {
				t.Error(err)
				return
			}
		}
	}()

	// Every search must see either the pre-build fallback or a complete
	// graph, never an empty result from a half-swapped index.
	for i := 0; i < 200; i++ {
		hits, err := idx.Search(ctx, axisVec(8, i%8), 3, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) == 0 {
			t.Fatal("empty result while the source has vectors")
		}
	}
	<-done
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx := NewIndex(testConfig(4), &memSource{})
	if err := idx.Upsert("n", []float32{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
