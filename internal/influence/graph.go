// Package influence maintains the drift-weighted influence graph between
// notes and serves decay-aware queries over it.
package influence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

// Edge weights below these thresholds are ignored.
const (
	// minDriftScore gates edge generation entirely for a drift event.
	minDriftScore = 0.1
	// minEdgeWeight gates creation and update of a single edge. A
	// pre-existing edge that would now fall below the threshold is left
	// untouched, not pruned.
	minEdgeWeight = 0.15
)

// DriftFunc maps a drift event to a score in [0,1].
type DriftFunc func(semanticDiff float64, oldClusterID, newClusterID *string) float64

// DefaultDriftScore scales the semantic diff and adds a bump when the edit
// moved the note between clusters.
func DefaultDriftScore(semanticDiff float64, oldClusterID, newClusterID *string) float64 {
	score := semanticDiff * 2
	if oldClusterID != nil && newClusterID != nil && *oldClusterID != *newClusterID {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Store is the persistence surface the graph needs.
type Store interface {
	storage.EmbeddingStore
	storage.EdgeStore
	storage.HistoryStore
}

// Graph builds and queries influence edges.
type Graph struct {
	store     Store
	driftFunc DriftFunc
	decayRate float64
	logger    *zap.Logger
}

// NewGraph creates an influence graph. A nil driftFunc uses DefaultDriftScore;
// a zero decayRate uses the balanced preset.
func NewGraph(store Store, driftFunc DriftFunc, decayRate float64, logger *zap.Logger) *Graph {
	if driftFunc == nil {
		driftFunc = DefaultDriftScore
	}
	if decayRate == 0 {
		decayRate = defaultDecayRate()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{store: store, driftFunc: driftFunc, decayRate: decayRate, logger: logger}
}

// RecordDrift generates edges into the drifted note from every other embedded
// note. The target must have an embedding; a drift score below the floor
// produces zero edges.
func (g *Graph) RecordDrift(ctx context.Context, targetNoteID string, semanticDiff float64, oldClusterID, newClusterID *string) (int, error) {
	target, err := g.store.GetEmbedding(ctx, targetNoteID)
	if err != nil {
		return 0, fmt.Errorf("drifted note needs an embedding: %w", err)
	}

	driftScore := g.driftFunc(semanticDiff, oldClusterID, newClusterID)
	if driftScore < minDriftScore {
		return 0, nil
	}

	embs, err := g.store.AllEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load embeddings: %w", err)
	}

	created := 0
	for _, source := range embs {
		if source.NoteID == targetNoteID {
			continue
		}
		sim, err := vector.Cosine(source.Vector, target.Vector)
		if err != nil {
			return created, fmt.Errorf("cosine against %s: %w", source.NoteID, err)
		}
		weight := sim * driftScore
		if weight < minEdgeWeight {
			continue
		}
		err = g.store.UpsertEdge(ctx, &models.InfluenceEdge{
			SourceNoteID: source.NoteID,
			TargetNoteID: targetNoteID,
			Weight:       weight,
			CosineSim:    sim,
			DriftScore:   driftScore,
		})
		if err != nil {
			return created, fmt.Errorf("failed to upsert edge: %w", err)
		}
		created++
	}

	g.logger.Debug("drift recorded",
		zap.String("note", targetNoteID),
		zap.Float64("driftScore", driftScore),
		zap.Int("edges", created))
	return created, nil
}

// RemoveNote deletes all edges touching the note in either direction.
func (g *Graph) RemoveNote(ctx context.Context, noteID string) error {
	return g.store.DeleteEdgesForNote(ctx, noteID)
}

// Rebuild clears all edges and replays every history record carrying a
// semantic diff. Records are replayed in store order, which is not guaranteed
// chronological; a later-processed record for the same ordered pair silently
// overwrites an earlier one.
func (g *Graph) Rebuild(ctx context.Context) (int, error) {
	if err := g.store.DeleteAllEdges(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear edges: %w", err)
	}

	history, err := g.store.HistoryWithSemanticDiff(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load history: %w", err)
	}

	total := 0
	for _, h := range history {
		created, err := g.RecordDrift(ctx, h.NoteID, h.SemanticDiff, h.OldClusterID, h.NewClusterID)
		if err != nil {
			// A note deleted since the record was written is expected;
			// skip and keep replaying.
			g.logger.Debug("replay skipped record", zap.String("note", h.NoteID), zap.Error(err))
			continue
		}
		total += created
	}

	g.logger.Info("influence graph rebuilt",
		zap.Int("records", len(history)), zap.Int("edges", total))
	return total, nil
}
