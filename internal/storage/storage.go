// Package storage defines the persistence interfaces for notes, embeddings,
// the influence graph, clusters, and job records.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kizuna/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// NoteStore provides note persistence. Note CRUD is owned by the surrounding
// system; the engine reads notes and writes cluster assignments.
type NoteStore interface {
	CreateNote(ctx context.Context, note *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	UpdateNote(ctx context.Context, note *models.Note) error
	DeleteNote(ctx context.Context, id string) error
	ListNotes(ctx context.Context) ([]*models.Note, error)
	CountNotes(ctx context.Context) (int64, error)

	// ClearClusterIDs resets every note's cluster assignment to null.
	ClearClusterIDs(ctx context.Context) error
	// AssignClusters bulk-assigns cluster ids keyed by note id.
	AssignClusters(ctx context.Context, byNote map[string]string) error
}

// EmbeddingStore persists one vector per note per model version.
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, emb *models.Embedding) error
	GetEmbedding(ctx context.Context, noteID string) (*models.Embedding, error)
	DeleteEmbedding(ctx context.Context, noteID string) error
	AllEmbeddings(ctx context.Context) ([]*models.Embedding, error)
	CountEmbeddings(ctx context.Context) (int64, error)
}

// ClusterStore persists cluster rows, replaced wholesale on each run.
type ClusterStore interface {
	DeleteAllClusters(ctx context.Context) error
	InsertClusters(ctx context.Context, clusters []*models.Cluster) error
	ListClusters(ctx context.Context) ([]*models.Cluster, error)
}

// EdgeStore persists influence edges, unique per ordered (source, target) pair.
type EdgeStore interface {
	UpsertEdge(ctx context.Context, edge *models.InfluenceEdge) error
	// DeleteEdgesForNote removes all edges touching the note in either direction.
	DeleteEdgesForNote(ctx context.Context, noteID string) error
	DeleteAllEdges(ctx context.Context) error
	// EdgesByTarget returns edges pointing at the note (its influencers),
	// heaviest first. limit <= 0 means no limit.
	EdgesByTarget(ctx context.Context, noteID string, limit int) ([]*models.InfluenceEdge, error)
	// EdgesBySource returns edges originating at the note (notes it
	// influenced), heaviest first. limit <= 0 means no limit.
	EdgesBySource(ctx context.Context, noteID string, limit int) ([]*models.InfluenceEdge, error)
	// AllEdges returns edges across the whole graph, heaviest first.
	AllEdges(ctx context.Context, limit int) ([]*models.InfluenceEdge, error)
}

// HistoryStore persists materially-significant edit snapshots.
type HistoryStore interface {
	AddHistory(ctx context.Context, entry *models.HistoryEntry) error
	HistoryForNote(ctx context.Context, noteID string) ([]*models.HistoryEntry, error)
	// HistoryWithSemanticDiff returns every record carrying a recorded
	// semantic diff, in store order. The order is NOT guaranteed
	// chronological; influence rebuild replays records as returned and a
	// later record for the same edge pair overwrites an earlier one.
	HistoryWithSemanticDiff(ctx context.Context) ([]*models.HistoryEntry, error)
}

// RelationStore persists a note's outgoing derived/similar relations.
type RelationStore interface {
	// ReplaceRelations deletes all prior outgoing relations for the source
	// note and inserts the new set.
	ReplaceRelations(ctx context.Context, sourceNoteID string, rels []*models.NoteRelation) error
	RelationsFrom(ctx context.Context, noteID string) ([]*models.NoteRelation, error)
	DeleteRelationsForNote(ctx context.Context, noteID string) error
}

// JobStore persists job and workflow status records for observability.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)

	SaveWorkflow(ctx context.Context, wf *models.WorkflowStatus) error
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowStatus, error)
}

// Store is the full persistence surface backed by one database.
type Store interface {
	NoteStore
	EmbeddingStore
	ClusterStore
	EdgeStore
	HistoryStore
	RelationStore
	JobStore
	Close() error
}
