package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/kizuna/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNoteCRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	note := &models.Note{
		ID:       "n1",
		Title:    "Go concurrency",
		Content:  "Goroutines and channels.",
		Tags:     []string{"go", "concurrency"},
		Headings: []string{"Goroutines", "Channels"},
		Category: "programming",
	}
	if err := store.CreateNote(ctx, note); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetNote(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != note.Title || len(got.Tags) != 2 || got.Tags[1] != "concurrency" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.ClusterID != nil {
		t.Errorf("new note has cluster id %v", *got.ClusterID)
	}

	got.Content = "Goroutines, channels, and select."
	if err := store.UpdateNote(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := store.GetNote(ctx, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Content != got.Content {
		t.Errorf("content = %q after update", again.Content)
	}

	if err := store.DeleteNote(ctx, "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetNote(ctx, "n1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestUpdateNoteMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateNote(context.Background(), &models.Note{ID: "ghost", Content: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing note = %v, want ErrNotFound", err)
	}
}

func TestClusterAssignment(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateNote(ctx, &models.Note{ID: id, Content: id}); err != nil {
			t.Fatal(err)
		}
	}

	err := store.AssignClusters(ctx, map[string]string{"a": "c1", "b": "c2"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	a, _ := store.GetNote(ctx, "a")
	if a.ClusterID == nil || *a.ClusterID != "c1" {
		t.Errorf("a cluster = %v, want c1", a.ClusterID)
	}
	c, _ := store.GetNote(ctx, "c")
	if c.ClusterID != nil {
		t.Errorf("c cluster = %v, want nil", *c.ClusterID)
	}

	if err := store.ClearClusterIDs(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	a, _ = store.GetNote(ctx, "a")
	if a.ClusterID != nil {
		t.Errorf("a cluster after clear = %v, want nil", *a.ClusterID)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	emb := &models.Embedding{
		NoteID:  "n1",
		Vector:  []float32{0.1, -0.5, 2.25, 0},
		Model:   "all-MiniLM-L6-v2",
		Version: "1",
	}
	if err := store.SaveEmbedding(ctx, emb); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetEmbedding(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Vector) != 4 || got.Vector[2] != 2.25 {
		t.Errorf("vector round-trip mismatch: %v", got.Vector)
	}

	// Saving again replaces the row rather than adding one.
	emb.Vector = []float32{1, 1, 1, 1}
	emb.Version = "2"
	if err := store.SaveEmbedding(ctx, emb); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	count, err := store.CountEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count after re-save = %d, want 1", count)
	}
	got, _ = store.GetEmbedding(ctx, "n1")
	if got.Version != "2" || got.Vector[0] != 1 {
		t.Errorf("re-save did not replace: %+v", got)
	}

	if err := store.DeleteEmbedding(ctx, "n1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEmbedding(ctx, "n1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestClusterReplace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := []*models.Cluster{
		{ID: "c1", Centroid: []float32{1, 0}, Size: 5, SampleNoteID: "n1"},
		{ID: "c2", Centroid: []float32{0, 1}, Size: 3, SampleNoteID: "n2"},
	}
	if err := store.InsertClusters(ctx, first); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteAllClusters(ctx); err != nil {
		t.Fatal(err)
	}
	second := []*models.Cluster{{ID: "c3", Centroid: []float32{1, 1}, Size: 8, SampleNoteID: "n3"}}
	if err := store.InsertClusters(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c3" {
		t.Errorf("clusters = %+v, want only c3", got)
	}
	if got[0].Centroid[1] != 1 {
		t.Errorf("centroid round-trip mismatch: %v", got[0].Centroid)
	}
}

func TestEdgeUpsertRefreshesTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	edge := &models.InfluenceEdge{
		SourceNoteID: "s", TargetNoteID: "t",
		Weight: 0.2, CosineSim: 0.5, DriftScore: 0.4, CreatedAt: old,
	}
	if err := store.UpsertEdge(ctx, edge); err != nil {
		t.Fatal(err)
	}

	edge.Weight = 0.3
	edge.CreatedAt = time.Now()
	if err := store.UpsertEdge(ctx, edge); err != nil {
		t.Fatal(err)
	}

	edges, err := store.EdgesByTarget(ctx, "t", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %d, want 1 (upsert, not insert)", len(edges))
	}
	if edges[0].Weight != 0.3 {
		t.Errorf("weight = %v, want 0.3", edges[0].Weight)
	}
	if edges[0].CreatedAt.Sub(old) < 24*time.Hour {
		t.Error("upsert did not refresh created_at")
	}
}

func TestEdgeQueriesOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	weights := map[string]float64{"a": 0.1, "b": 0.9, "c": 0.5}
	for src, w := range weights {
		edge := &models.InfluenceEdge{SourceNoteID: src, TargetNoteID: "t", Weight: w, CosineSim: w, DriftScore: 1}
		if err := store.UpsertEdge(ctx, edge); err != nil {
			t.Fatal(err)
		}
	}

	edges, err := store.EdgesByTarget(ctx, "t", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 || edges[0].SourceNoteID != "b" || edges[1].SourceNoteID != "c" {
		t.Errorf("unexpected order/limit: %+v", edges)
	}

	all, err := store.AllEdges(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all edges = %d, want 3", len(all))
	}

	if err := store.DeleteEdgesForNote(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	all, _ = store.AllEdges(ctx, 0)
	if len(all) != 2 {
		t.Errorf("edges after delete = %d, want 2", len(all))
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	oldCluster := "c1"
	entries := []*models.HistoryEntry{
		{ID: "h1", NoteID: "n1", Diff: "+hello", SemanticDiff: 0.12, OldClusterID: &oldCluster, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "h2", NoteID: "n1", Diff: "+world", SemanticDiff: 0.07, CreatedAt: time.Now()},
		{ID: "h3", NoteID: "n2", Diff: "+x", SemanticDiff: 0, CreatedAt: time.Now()},
	}
	for _, e := range entries {
		if err := store.AddHistory(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.HistoryForNote(ctx, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "h2" {
		t.Errorf("history = %+v, want h2 first", got)
	}
	if got[1].OldClusterID == nil || *got[1].OldClusterID != "c1" {
		t.Error("old cluster id not round-tripped")
	}

	withDiff, err := store.HistoryWithSemanticDiff(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(withDiff) != 2 {
		t.Errorf("semantic-diff history = %d, want 2", len(withDiff))
	}
}

func TestRelationsReplace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := []*models.NoteRelation{
		{TargetNoteID: "t1", Kind: models.RelationDerived, Score: 0.95},
		{TargetNoteID: "t2", Kind: models.RelationSimilar, Score: 0.88},
	}
	if err := store.ReplaceRelations(ctx, "src", first); err != nil {
		t.Fatal(err)
	}

	second := []*models.NoteRelation{
		{TargetNoteID: "t3", Kind: models.RelationSimilar, Score: 0.9},
	}
	if err := store.ReplaceRelations(ctx, "src", second); err != nil {
		t.Fatal(err)
	}

	got, err := store.RelationsFrom(ctx, "src")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TargetNoteID != "t3" {
		t.Errorf("relations = %+v, want only t3", got)
	}
	if got[0].Kind != models.RelationSimilar {
		t.Errorf("kind = %v", got[0].Kind)
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	job := &models.Job{
		ID:     "j1",
		Type:   models.JobAnalyze,
		Status: models.JobPending,
		Payload: models.AnalyzePayload{
			NoteID:    "n1",
			UpdatedAt: time.Now().Truncate(time.Second),
			IsNew:     true,
		},
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	payload, ok := got.Payload.(models.AnalyzePayload)
	if !ok {
		t.Fatalf("payload type = %T", got.Payload)
	}
	if payload.NoteID != "n1" || !payload.IsNew {
		t.Errorf("payload round-trip mismatch: %+v", payload)
	}

	now := time.Now()
	got.Status = models.JobCompleted
	got.Progress = 100
	got.StartedAt = &now
	got.FinishedAt = &now
	if err := store.UpdateJob(ctx, got); err != nil {
		t.Fatal(err)
	}

	again, _ := store.GetJob(ctx, "j1")
	if again.Status != models.JobCompleted || again.Progress != 100 {
		t.Errorf("updated job = %+v", again)
	}
	if again.FinishedAt == nil {
		t.Error("finished_at not persisted")
	}

	jobs, err := store.ListJobs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(jobs))
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	wf := &models.WorkflowStatus{
		ID:     "w1",
		Result: models.WorkflowRunning,
		Steps: []models.StepProgress{
			{Name: "clear_embeddings", State: models.StepCompleted},
			{Name: "regenerate_embeddings", State: models.StepInProgress},
		},
		StartedAt: time.Now().Truncate(time.Second),
	}
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatal(err)
	}

	done := time.Now()
	wf.Result = models.WorkflowPartial
	wf.Steps[1].State = models.StepFailed
	wf.Steps[1].Error = "embedder unavailable"
	wf.Errors = []string{"regenerate_embeddings: embedder unavailable"}
	wf.ClusterJobID = "j9"
	wf.FinishedAt = &done
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetWorkflow(ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Result != models.WorkflowPartial {
		t.Errorf("result = %v", got.Result)
	}
	if len(got.Steps) != 2 || got.Steps[1].State != models.StepFailed {
		t.Errorf("steps = %+v", got.Steps)
	}
	if len(got.Errors) != 1 || got.ClusterJobID != "j9" {
		t.Errorf("errors/job = %+v %q", got.Errors, got.ClusterJobID)
	}
}
