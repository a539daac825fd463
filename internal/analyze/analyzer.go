// Package analyze runs the per-note analysis pass: embedding, drift
// detection, history capture, and relation rebuilding.
package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

const (
	// minSemanticDiff is the floor for recording a history snapshot;
	// history captures materially significant edits, not every save.
	minSemanticDiff = 0.05
	// relationFloor is the minimum cosine similarity for a relation.
	relationFloor = 0.85
	// derivedFloor splits relations into derived vs similar.
	derivedFloor = 0.92
	// maxRelations caps a note's outgoing relation set.
	maxRelations = 10
)

// Embedder produces embeddings for note text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorUpserter receives the fresh embedding for search.
type VectorUpserter interface {
	Upsert(noteID string, vec []float32) error
}

// TextIndexer receives the note for full-text search.
type TextIndexer interface {
	Index(ctx context.Context, note *models.Note) error
}

// DriftRecorder turns a significant edit into influence edges.
type DriftRecorder interface {
	RecordDrift(ctx context.Context, noteID string, semanticDiff float64, oldClusterID, newClusterID *string) (int, error)
}

// Store is the persistence surface the analyzer needs.
type Store interface {
	storage.NoteStore
	storage.EmbeddingStore
	storage.HistoryStore
	storage.RelationStore
}

// Invalidator drops derived lexical state after a content mutation.
type Invalidator func()

// Analyzer processes one ANALYZE job.
type Analyzer struct {
	store         Store
	embedder      Embedder
	index         VectorUpserter
	textIndex     TextIndexer
	drift         DriftRecorder
	invalidateIDF Invalidator
	model         string
	version       string
	logger        *zap.Logger
}

// NewAnalyzer wires the analyzer's collaborators. textIndex, drift, and
// invalidateIDF may be nil when the corresponding side effect is not wanted.
func NewAnalyzer(
	store Store,
	embedder Embedder,
	index VectorUpserter,
	textIndex TextIndexer,
	drift DriftRecorder,
	invalidateIDF Invalidator,
	model, version string,
	logger *zap.Logger,
) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		store:         store,
		embedder:      embedder,
		index:         index,
		textIndex:     textIndex,
		drift:         drift,
		invalidateIDF: invalidateIDF,
		model:         model,
		version:       version,
		logger:        logger,
	}
}

// Analyze runs the analysis pass for the note in payload. If the note has
// been edited again since the job was enqueued, the job is skipped entirely
// with zero side effects.
func (a *Analyzer) Analyze(ctx context.Context, payload models.AnalyzePayload) error {
	note, err := a.store.GetNote(ctx, payload.NoteID)
	if err != nil {
		return fmt.Errorf("failed to load note: %w", err)
	}
	if note.UpdatedAt.After(payload.UpdatedAt) {
		a.logger.Debug("analyze superseded by a later edit, skipping",
			zap.String("note", note.ID))
		return nil
	}

	newVec, err := a.embedder.Embed(ctx, note.Title+"\n"+note.Content)
	if err != nil {
		return fmt.Errorf("failed to embed note: %w", err)
	}
	err = a.store.SaveEmbedding(ctx, &models.Embedding{
		NoteID:  note.ID,
		Vector:  newVec,
		Model:   a.model,
		Version: a.version,
	})
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	if err := a.index.Upsert(note.ID, newVec); err != nil {
		return fmt.Errorf("failed to update vector index: %w", err)
	}
	if a.textIndex != nil {
		if err := a.textIndex.Index(ctx, note); err != nil {
			a.logger.Warn("full-text index update failed", zap.Error(err))
		}
	}
	if a.invalidateIDF != nil {
		a.invalidateIDF()
	}

	significant := false
	if payload.PrevContent != "" {
		significant, err = a.detectDrift(ctx, note, payload.PrevContent, newVec)
		if err != nil {
			return err
		}
	}

	if payload.IsNew || significant {
		if err := a.rebuildRelations(ctx, note.ID, newVec); err != nil {
			return err
		}
	}
	return nil
}

// detectDrift embeds the previous content and compares. A semantic diff at or
// above the floor records a history snapshot and influence edges.
func (a *Analyzer) detectDrift(ctx context.Context, note *models.Note, prevContent string, newVec []float32) (bool, error) {
	oldVec, err := a.embedder.Embed(ctx, note.Title+"\n"+prevContent)
	if err != nil {
		return false, fmt.Errorf("failed to embed previous content: %w", err)
	}
	sim, err := vector.Cosine(oldVec, newVec)
	if err != nil {
		return false, fmt.Errorf("failed to compare embeddings: %w", err)
	}
	semanticDiff := 1 - sim
	if semanticDiff < minSemanticDiff {
		return false, nil
	}

	entry := &models.HistoryEntry{
		ID:           uuid.New().String(),
		NoteID:       note.ID,
		Diff:         textDiff(prevContent, note.Content),
		SemanticDiff: semanticDiff,
		OldClusterID: note.ClusterID,
		NewClusterID: note.ClusterID,
	}
	if err := a.store.AddHistory(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to record history: %w", err)
	}

	if a.drift != nil {
		if _, err := a.drift.RecordDrift(ctx, note.ID, semanticDiff, entry.OldClusterID, entry.NewClusterID); err != nil {
			a.logger.Warn("influence edge generation failed", zap.Error(err))
		}
	}
	return true, nil
}

// rebuildRelations replaces the note's outgoing relations with the top
// similar embedded notes.
func (a *Analyzer) rebuildRelations(ctx context.Context, noteID string, vec []float32) error {
	embs, err := a.store.AllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	var rels []*models.NoteRelation
	for _, other := range embs {
		if other.NoteID == noteID {
			continue
		}
		sim, err := vector.Cosine(vec, other.Vector)
		if err != nil {
			return fmt.Errorf("cosine against %s: %w", other.NoteID, err)
		}
		if sim < relationFloor {
			continue
		}
		kind := models.RelationSimilar
		if sim >= derivedFloor {
			kind = models.RelationDerived
		}
		rels = append(rels, &models.NoteRelation{
			SourceNoteID: noteID,
			TargetNoteID: other.NoteID,
			Kind:         kind,
			Score:        sim,
		})
	}

	sort.Slice(rels, func(i, j int) bool { return rels[i].Score > rels[j].Score })
	if len(rels) > maxRelations {
		rels = rels[:maxRelations]
	}
	return a.store.ReplaceRelations(ctx, noteID, rels)
}

// textDiff produces a compact line diff: removed lines prefixed with "-",
// added lines with "+". Unchanged lines are omitted.
func textDiff(old, new string) string {
	oldLines := strings.Split(old, "\n")
	newLines := strings.Split(new, "\n")

	oldSet := make(map[string]int)
	for _, l := range oldLines {
		oldSet[l]++
	}
	newSet := make(map[string]int)
	for _, l := range newLines {
		newSet[l]++
	}

	var b strings.Builder
	for _, l := range oldLines {
		if newSet[l] > 0 {
			newSet[l]--
			continue
		}
		b.WriteString("-")
		b.WriteString(l)
		b.WriteString("\n")
	}
	for _, l := range newLines {
		if oldSet[l] > 0 {
			oldSet[l]--
			continue
		}
		b.WriteString("+")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
