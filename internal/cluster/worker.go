package cluster

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

const (
	// minEmbedded is the minimum embedded-note count for a clustering run.
	// Below it the run is a silent no-op; clustering is advisory and never
	// blocks other operations.
	minEmbedded = 3
	defaultK    = 8
	minK        = 2
)

// Embedder generates embeddings for the backfill pass.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence surface the worker needs.
type Store interface {
	storage.NoteStore
	storage.EmbeddingStore
	storage.ClusterStore
}

// Worker runs one clustering pass over all embedded notes.
type Worker struct {
	store    Store
	embedder Embedder
	model    string
	version  string
	logger   *zap.Logger
	rng      *rand.Rand
}

// NewWorker creates a clustering worker. model and version label embeddings
// written by the backfill pass.
func NewWorker(store Store, embedder Embedder, model, version string, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		model:    model,
		version:  version,
		logger:   logger,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
}

// Rebuild regenerates missing embeddings (when requested), runs K-means, and
// replaces the persisted clusters and note assignments.
func (w *Worker) Rebuild(ctx context.Context, payload models.ClusterRebuildPayload) error {
	if payload.RegenerateOrDefault() {
		w.backfillEmbeddings(ctx)
	}

	embs, err := w.store.AllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(embs) < minEmbedded {
		w.logger.Warn("too few embedded notes for clustering, skipping",
			zap.Int("embedded", len(embs)), zap.Int("required", minEmbedded))
		return nil
	}

	k := clampK(payload.K, len(embs))

	vectors := make([][]float32, len(embs))
	for i, e := range embs {
		vectors[i] = e.Vector
	}
	centroids, assignments := kmeans(vectors, k, w.rng)

	clusters, byNote := w.buildClusters(embs, centroids, assignments)

	return w.persist(ctx, clusters, byNote)
}

// backfillEmbeddings generates an embedding for any note missing one.
// Failures are counted and logged, never fatal.
func (w *Worker) backfillEmbeddings(ctx context.Context) {
	notes, err := w.store.ListNotes(ctx)
	if err != nil {
		w.logger.Warn("backfill skipped, failed to list notes", zap.Error(err))
		return
	}

	failures := 0
	generated := 0
	for _, note := range notes {
		if _, err := w.store.GetEmbedding(ctx, note.ID); err == nil {
			continue
		}
		vec, err := w.embedder.Embed(ctx, note.Title+"\n"+note.Content)
		if err != nil {
			failures++
			continue
		}
		err = w.store.SaveEmbedding(ctx, &models.Embedding{
			NoteID:  note.ID,
			Vector:  vec,
			Model:   w.model,
			Version: w.version,
		})
		if err != nil {
			failures++
			continue
		}
		generated++
	}
	if generated > 0 || failures > 0 {
		w.logger.Info("embedding backfill finished",
			zap.Int("generated", generated), zap.Int("failed", failures))
	}
}

// clampK bounds k to [2, min(requestedOrDefault, noteCount)].
func clampK(requested, n int) int {
	if requested <= 0 {
		requested = defaultK
	}
	k := requested
	if k > n {
		k = n
	}
	if k < minK {
		k = minK
	}
	return k
}

// buildClusters assembles cluster rows, choosing each representative note as
// the member with maximum cosine similarity to its centroid.
func (w *Worker) buildClusters(embs []*models.Embedding, centroids [][]float32, assignments []int) ([]*models.Cluster, map[string]string) {
	type member struct {
		noteID string
		sim    float64
	}
	best := make([]member, len(centroids))
	sizes := make([]int, len(centroids))
	for i := range best {
		best[i].sim = -2
	}

	byNote := make(map[string]string, len(embs))
	ids := make([]string, len(centroids))
	for c := range centroids {
		ids[c] = uuid.New().String()
	}

	for i, e := range embs {
		c := assignments[i]
		sizes[c]++
		byNote[e.NoteID] = ids[c]
		sim, err := vector.Cosine(e.Vector, centroids[c])
		if err != nil {
			continue
		}
		if sim > best[c].sim {
			best[c] = member{noteID: e.NoteID, sim: sim}
		}
	}

	var clusters []*models.Cluster
	for c, centroid := range centroids {
		if sizes[c] == 0 {
			continue
		}
		clusters = append(clusters, &models.Cluster{
			ID:           ids[c],
			Centroid:     centroid,
			Size:         sizes[c],
			SampleNoteID: best[c].noteID,
		})
	}
	return clusters, byNote
}

// persist replaces the stored clustering in four steps: delete clusters,
// null out assignments, insert new clusters, assign notes. The sequence is
// not one transaction; a crash mid-way leaves notes unassigned with no
// clusters present, which the next run repairs.
func (w *Worker) persist(ctx context.Context, clusters []*models.Cluster, byNote map[string]string) error {
	if err := w.store.DeleteAllClusters(ctx); err != nil {
		return fmt.Errorf("failed to delete clusters: %w", err)
	}
	if err := w.store.ClearClusterIDs(ctx); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	if err := w.store.InsertClusters(ctx, clusters); err != nil {
		return fmt.Errorf("failed to insert clusters: %w", err)
	}
	if err := w.store.AssignClusters(ctx, byNote); err != nil {
		return fmt.Errorf("failed to assign clusters: %w", err)
	}

	w.logger.Info("clustering finished",
		zap.Int("clusters", len(clusters)), zap.Int("notes", len(byNote)))
	return nil
}
