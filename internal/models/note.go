// Package models defines core data structures for notes, embeddings, and the influence graph.
package models

import "time"

// Note is a knowledge-base note. The CRUD layer owns most fields; the
// analysis engine reads them and writes ClusterID and derived artifacts.
type Note struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	Tags      []string  `json:"tags" db:"tags"`
	Headings  []string  `json:"headings" db:"headings"`
	Category  string    `json:"category" db:"category"`
	ClusterID *string   `json:"cluster_id,omitempty" db:"cluster_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NoteInput is the input for creating or updating a note.
type NoteInput struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
	Headings []string `json:"headings,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Embedding is one note's vector under a specific model version.
// At most one live embedding exists per (note, model version).
type Embedding struct {
	NoteID    string    `json:"note_id" db:"note_id"`
	Vector    []float32 `json:"-" db:"-"`
	Model     string    `json:"model" db:"model"`
	Version   string    `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Cluster is one k-means cluster. Clusters are replaced wholesale on each
// clustering run, not versioned.
type Cluster struct {
	ID           string    `json:"id" db:"id"`
	Centroid     []float32 `json:"-" db:"-"`
	Size         int       `json:"size" db:"size"`
	SampleNoteID string    `json:"sample_note_id" db:"sample_note_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// InfluenceEdge asserts that a drift event in the target note was caused by
// semantic proximity to the source note. Unique per ordered (source, target)
// pair with upsert semantics.
type InfluenceEdge struct {
	SourceNoteID string    `json:"source_note_id" db:"source_note_id"`
	TargetNoteID string    `json:"target_note_id" db:"target_note_id"`
	Weight       float64   `json:"weight" db:"weight"`
	CosineSim    float64   `json:"cosine_sim" db:"cosine_sim"`
	DriftScore   float64   `json:"drift_score" db:"drift_score"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// DecayedEdge is an influence edge with decay applied at query time.
type DecayedEdge struct {
	InfluenceEdge
	DecayedWeight float64 `json:"decayed_weight"`
	DecayFactor   float64 `json:"decay_factor"`
	AgeDays       float64 `json:"age_days"`
}

// RelationKind classifies an outgoing note relation by similarity strength.
type RelationKind string

const (
	RelationDerived RelationKind = "derived"
	RelationSimilar RelationKind = "similar"
)

// NoteRelation is a directed similarity link from one note to another,
// rebuilt wholesale for a note when its content drifts.
type NoteRelation struct {
	SourceNoteID string       `json:"source_note_id" db:"source_note_id"`
	TargetNoteID string       `json:"target_note_id" db:"target_note_id"`
	Kind         RelationKind `json:"kind" db:"kind"`
	Score        float64      `json:"score" db:"score"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// HistoryEntry is a snapshot recorded when an edit was materially
// significant (semantic diff above threshold), not on every save.
type HistoryEntry struct {
	ID           string    `json:"id" db:"id"`
	NoteID       string    `json:"note_id" db:"note_id"`
	Diff         string    `json:"diff" db:"diff"`
	SemanticDiff float64   `json:"semantic_diff" db:"semantic_diff"`
	OldClusterID *string   `json:"old_cluster_id,omitempty" db:"old_cluster_id"`
	NewClusterID *string   `json:"new_cluster_id,omitempty" db:"new_cluster_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
