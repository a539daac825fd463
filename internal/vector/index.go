package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kizuna/internal/models"
	"go.uber.org/zap"
)

// ErrBuildInProgress is returned by Build when another build is already
// running. Builds are never queued; the caller retries.
var ErrBuildInProgress = errors.New("index build in progress")

// ErrIndexFull is returned by Upsert when the capacity bound is reached.
var ErrIndexFull = errors.New("index at capacity")

// Source provides the stored embeddings the index is built from and the
// linear-scan fallback reads.
type Source interface {
	AllEmbeddings(ctx context.Context) ([]*models.Embedding, error)
}

// Config holds index parameters.
type Config struct {
	Dimensions     int
	Capacity       int
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns the production index parameters.
func DefaultConfig() Config {
	return Config{
		Dimensions:     384,
		Capacity:       100_000,
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
	}
}

// Hit is a single similarity search result.
type Hit struct {
	NoteID     string
	Similarity float64
}

// Stats describes the index state.
type Stats struct {
	Initialized  bool    `json:"initialized"`
	Live         int     `json:"live"`
	Tombstones   int     `json:"tombstones"`
	DeletedRatio float64 `json:"deleted_ratio"`
	Capacity     int     `json:"capacity"`
}

// Index is a cosine-space ANN index over note embeddings. Labels are stable
// integers; removal tombstones a label without reclaiming it, and a full
// rebuild compacts by assigning fresh labels.
type Index struct {
	cfg    Config
	source Source
	logger *zap.Logger

	mu         sync.RWMutex
	graph      *Graph
	labels     map[string]uint32 // live noteID -> label
	noteIDs    map[uint32]string // live label -> noteID
	tombstones map[uint32]struct{}
	nextLabel  uint32

	buildMu sync.Mutex // fail-fast guard, never queued
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for rebuild events.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Index) { idx.logger = l }
}

// NewIndex creates an empty, uninitialized index. Searches before the first
// Build or Upsert fall back to a linear scan over the source.
func NewIndex(cfg Config, source Source, opts ...Option) *Index {
	if cfg.Dimensions <= 0 {
		cfg = DefaultConfig()
	}
	idx := &Index{
		cfg:        cfg,
		source:     source,
		logger:     zap.NewNop(),
		labels:     make(map[string]uint32),
		noteIDs:    make(map[uint32]string),
		tombstones: make(map[uint32]struct{}),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Build rebuilds the index from all stored embeddings, compacting labels and
// clearing tombstones. A concurrent Build fails fast with ErrBuildInProgress.
func (idx *Index) Build(ctx context.Context) error {
	if !idx.buildMu.TryLock() {
		return ErrBuildInProgress
	}
	defer idx.buildMu.Unlock()

	embs, err := idx.source.AllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}

	graph := NewGraph(idx.cfg.M, idx.cfg.EfConstruction, int64(len(embs)))
	labels := make(map[string]uint32, len(embs))
	noteIDs := make(map[uint32]string, len(embs))
	var next uint32
	for _, e := range embs {
		if len(e.Vector) != idx.cfg.Dimensions {
			return fmt.Errorf("embedding for note %s: %w: got %d, want %d",
				e.NoteID, ErrDimensionMismatch, len(e.Vector), idx.cfg.Dimensions)
		}
		label := next
		next++
		graph.Insert(label, Normalize(e.Vector))
		labels[e.NoteID] = label
		noteIDs[label] = e.NoteID
	}

	idx.mu.Lock()
	idx.graph = graph
	idx.labels = labels
	idx.noteIDs = noteIDs
	idx.tombstones = make(map[uint32]struct{})
	idx.nextLabel = next
	idx.mu.Unlock()

	idx.logger.Info("vector index built", zap.Int("vectors", len(embs)))
	return nil
}

// Upsert inserts or updates the vector for noteID. The first sight of a note
// assigns a fresh label; updates overwrite by label.
func (idx *Index) Upsert(noteID string, vec []float32) error {
	if len(vec) != idx.cfg.Dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), idx.cfg.Dimensions)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph == nil {
		idx.graph = NewGraph(idx.cfg.M, idx.cfg.EfConstruction, 1)
	}
	label, ok := idx.labels[noteID]
	if !ok {
		if len(idx.labels)+len(idx.tombstones) >= idx.cfg.Capacity {
			return ErrIndexFull
		}
		label = idx.nextLabel
		idx.nextLabel++
		idx.labels[noteID] = label
		idx.noteIDs[label] = noteID
	}
	idx.graph.Insert(label, Normalize(vec))
	return nil
}

// Remove tombstones the note's label. The label is excluded from results but
// not reclaimed until the next full Build. Unknown notes are a no-op.
func (idx *Index) Remove(noteID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	label, ok := idx.labels[noteID]
	if !ok {
		return
	}
	delete(idx.labels, noteID)
	delete(idx.noteIDs, label)
	idx.tombstones[label] = struct{}{}
}

// Search returns up to limit notes by cosine similarity to query. When the
// index is uninitialized or empty it silently falls back to a linear scan
// over all stored embeddings; that path never errors on emptiness.
// ef overrides the configured search breadth when positive.
func (idx *Index) Search(ctx context.Context, query []float32, limit, ef int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := Normalize(query)
	if ef <= 0 {
		ef = idx.cfg.EfSearch
	}

	// One read lock spans the emptiness check and the graph query, so the
	// fallback decision and the graph it was made against cannot diverge
	// under a concurrent Build.
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil || len(idx.labels) == 0 {
		return idx.linearScan(ctx, q, limit)
	}

	// Over-fetch to survive tombstone filtering.
	fetch := limit + len(idx.tombstones) + 10
	cands := idx.graph.Search(q, fetch, ef)

	hits := make([]Hit, 0, limit)
	for _, c := range cands {
		if _, dead := idx.tombstones[c.Label]; dead {
			continue
		}
		noteID, ok := idx.noteIDs[c.Label]
		if !ok {
			continue
		}
		hits = append(hits, Hit{NoteID: noteID, Similarity: 1 - c.Distance})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// linearScan is the O(N) fallback over all stored embeddings.
func (idx *Index) linearScan(ctx context.Context, q []float32, limit int) ([]Hit, error) {
	embs, err := idx.source.AllEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("linear scan: %w", err)
	}
	hits := make([]Hit, 0, len(embs))
	for _, e := range embs {
		sim, err := Cosine(q, e.Vector)
		if err != nil {
			return nil, fmt.Errorf("note %s: %w", e.NoteID, err)
		}
		hits = append(hits, Hit{NoteID: e.NoteID, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ShouldRebuild reports whether the tombstone ratio has crossed the rebuild
// threshold (more than 20% of slots dead).
func (idx *Index) ShouldRebuild() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := len(idx.labels) + len(idx.tombstones)
	if total == 0 {
		return false
	}
	return float64(len(idx.tombstones))/float64(total) > 0.2
}

// Stats returns a snapshot of the index state.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := len(idx.labels) + len(idx.tombstones)
	ratio := 0.0
	if total > 0 {
		ratio = float64(len(idx.tombstones)) / float64(total)
	}
	return Stats{
		Initialized:  idx.graph != nil,
		Live:         len(idx.labels),
		Tombstones:   len(idx.tombstones),
		DeletedRatio: ratio,
		Capacity:     idx.cfg.Capacity,
	}
}
