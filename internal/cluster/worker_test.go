package cluster

import (
	"context"
	"math/rand"
	"testing"

	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
)

func newTestWorker(t *testing.T) (*Worker, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	w := NewWorker(store, embedding.NewMockEmbedder(16), "mock", "1", nil)
	w.rng = rand.New(rand.NewSource(1))
	return w, store
}

func seedEmbeddedNote(t *testing.T, store *storage.SQLiteStore, id string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateNote(ctx, &models.Note{ID: id, Content: "note " + id}); err != nil {
		t.Fatal(err)
	}
	err := store.SaveEmbedding(ctx, &models.Embedding{NoteID: id, Vector: vec, Model: "mock", Version: "1"})
	if err != nil {
		t.Fatal(err)
	}
}

func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func TestRebuildTooFewNotesIsNoOp(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorker(t)

	seedEmbeddedNote(t, store, "a", axis(16, 0))
	seedEmbeddedNote(t, store, "b", axis(16, 1))

	regen := false
	err := w.Rebuild(ctx, models.ClusterRebuildPayload{RegenerateEmbeddings: &regen})
	if err != nil {
		t.Fatalf("rebuild with 2 notes must not error: %v", err)
	}
	clusters, _ := store.ListClusters(ctx)
	if len(clusters) != 0 {
		t.Errorf("clusters = %d, want 0 (silent no-op)", len(clusters))
	}
}

func TestRebuildClampsK(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorker(t)

	// 10 notes on 2 well-separated axes, but request k=100.
	for i := 0; i < 10; i++ {
		seedEmbeddedNote(t, store, string(rune('a'+i)), axis(16, i%2))
	}

	regen := false
	err := w.Rebuild(ctx, models.ClusterRebuildPayload{K: 100, RegenerateEmbeddings: &regen})
	if err != nil {
		t.Fatal(err)
	}

	clusters, err := store.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) == 0 || len(clusters) > 10 {
		t.Errorf("clusters = %d, want within [1, noteCount]", len(clusters))
	}

	total := 0
	for _, c := range clusters {
		total += c.Size
		if c.SampleNoteID == "" {
			t.Error("cluster missing representative note")
		}
	}
	if total != 10 {
		t.Errorf("cluster sizes sum to %d, want 10", total)
	}
}

func TestClampK(t *testing.T) {
	cases := []struct {
		requested, n, want int
	}{
		{0, 20, 8},   // default
		{100, 5, 5},  // bounded by note count
		{1, 10, 2},   // floor of 2
		{4, 10, 4},   // as requested
		{8, 3, 3},    // small corpus
	}
	for _, tc := range cases {
		if got := clampK(tc.requested, tc.n); got != tc.want {
			t.Errorf("clampK(%d, %d) = %d, want %d", tc.requested, tc.n, got, tc.want)
		}
	}
}

func TestRebuildAssignsEveryNote(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorker(t)

	for i := 0; i < 6; i++ {
		seedEmbeddedNote(t, store, string(rune('a'+i)), axis(16, i%3))
	}

	regen := false
	err := w.Rebuild(ctx, models.ClusterRebuildPayload{K: 3, RegenerateEmbeddings: &regen})
	if err != nil {
		t.Fatal(err)
	}

	notes, err := store.ListNotes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range notes {
		if n.ClusterID == nil {
			t.Errorf("note %s unassigned after rebuild", n.ID)
		}
	}
}

func TestRebuildBackfillsMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorker(t)

	// Three notes, none embedded; the backfill pass must embed them all.
	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateNote(ctx, &models.Note{ID: id, Content: "content " + id}); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.Rebuild(ctx, models.ClusterRebuildPayload{}); err != nil {
		t.Fatal(err)
	}

	count, err := store.CountEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("embeddings after backfill = %d, want 3", count)
	}
}
