// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kizuna/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT NOT NULL,
		tags TEXT,
		headings TEXT,
		category TEXT,
		cluster_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notes_cluster ON notes(cluster_id);
	CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at);

	CREATE TABLE IF NOT EXISTS embeddings (
		note_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		model TEXT NOT NULL,
		version TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,
		centroid BLOB NOT NULL,
		size INTEGER NOT NULL,
		sample_note_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS influence_edges (
		source_note_id TEXT NOT NULL,
		target_note_id TEXT NOT NULL,
		weight REAL NOT NULL,
		cosine_sim REAL NOT NULL,
		drift_score REAL NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_note_id, target_note_id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_target ON influence_edges(target_note_id);

	CREATE TABLE IF NOT EXISTS note_relations (
		source_note_id TEXT NOT NULL,
		target_note_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		score REAL NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_note_id, target_note_id)
	);

	CREATE TABLE IF NOT EXISTS note_history (
		id TEXT PRIMARY KEY,
		note_id TEXT NOT NULL,
		diff TEXT,
		semantic_diff REAL NOT NULL,
		old_cluster_id TEXT,
		new_cluster_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_note ON note_history(note_id);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT,
		result TEXT,
		error TEXT,
		progress INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		result TEXT NOT NULL,
		steps TEXT NOT NULL,
		errors TEXT,
		cluster_job_id TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// --- notes ---

// CreateNote inserts a note.
func (s *SQLiteStore) CreateNote(ctx context.Context, note *models.Note) error {
	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	headings, err := json.Marshal(note.Headings)
	if err != nil {
		return fmt.Errorf("failed to marshal headings: %w", err)
	}

	now := time.Now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes (id, title, content, tags, headings, category, cluster_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.Title, note.Content, string(tags), string(headings),
		note.Category, note.ClusterID, note.CreatedAt, note.UpdatedAt,
	)
	return err
}

func scanNote(scan func(dest ...interface{}) error) (*models.Note, error) {
	var note models.Note
	var tagsJSON, headingsJSON string
	err := scan(&note.ID, &note.Title, &note.Content, &tagsJSON, &headingsJSON,
		&note.Category, &note.ClusterID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &note.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if headingsJSON != "" {
		if err := json.Unmarshal([]byte(headingsJSON), &note.Headings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headings: %w", err)
		}
	}
	return &note, nil
}

const noteColumns = `id, title, content, tags, headings, category, cluster_id, created_at, updated_at`

// GetNote returns a note by ID.
func (s *SQLiteStore) GetNote(ctx context.Context, id string) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	note, err := scanNote(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNote updates an existing note and bumps updated_at.
func (s *SQLiteStore) UpdateNote(ctx context.Context, note *models.Note) error {
	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	headings, err := json.Marshal(note.Headings)
	if err != nil {
		return fmt.Errorf("failed to marshal headings: %w", err)
	}

	note.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, tags = ?, headings = ?, category = ?, cluster_id = ?, updated_at = ?
		 WHERE id = ?`,
		note.Title, note.Content, string(tags), string(headings),
		note.Category, note.ClusterID, note.UpdatedAt, note.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("note %s: %w", note.ID, ErrNotFound)
	}
	return nil
}

// DeleteNote removes a note by ID.
func (s *SQLiteStore) DeleteNote(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return err
}

// ListNotes returns all notes.
func (s *SQLiteStore) ListNotes(ctx context.Context) ([]*models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note, err := scanNote(rows.Scan)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// CountNotes returns the total number of notes.
func (s *SQLiteStore) CountNotes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count)
	return count, err
}

// ClearClusterIDs resets every note's cluster assignment to null.
func (s *SQLiteStore) ClearClusterIDs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notes SET cluster_id = NULL`)
	return err
}

// AssignClusters bulk-assigns cluster ids keyed by note id.
func (s *SQLiteStore) AssignClusters(ctx context.Context, byNote map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE notes SET cluster_id = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for noteID, clusterID := range byNote {
		if _, err := stmt.ExecContext(ctx, clusterID, noteID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- embeddings ---

// SaveEmbedding inserts or replaces the note's embedding. At most one live
// embedding exists per note; re-embedding under a new model version replaces
// the old row.
func (s *SQLiteStore) SaveEmbedding(ctx context.Context, emb *models.Embedding) error {
	now := time.Now()
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = now
	}
	emb.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (note_id, vector, model, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(note_id) DO UPDATE SET
			vector = excluded.vector,
			model = excluded.model,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		emb.NoteID, float32SliceToBytes(emb.Vector), emb.Model, emb.Version,
		emb.CreatedAt, emb.UpdatedAt,
	)
	return err
}

// GetEmbedding returns the note's embedding or ErrNotFound.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, noteID string) (*models.Embedding, error) {
	var emb models.Embedding
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT note_id, vector, model, version, created_at, updated_at
		 FROM embeddings WHERE note_id = ?`, noteID,
	).Scan(&emb.NoteID, &blob, &emb.Model, &emb.Version, &emb.CreatedAt, &emb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("embedding for note %s: %w", noteID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	emb.Vector = bytesToFloat32Slice(blob)
	return &emb, nil
}

// DeleteEmbedding removes the note's embedding.
func (s *SQLiteStore) DeleteEmbedding(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE note_id = ?`, noteID)
	return err
}

// AllEmbeddings returns every stored embedding.
func (s *SQLiteStore) AllEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id, vector, model, version, created_at, updated_at FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embs []*models.Embedding
	for rows.Next() {
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(&emb.NoteID, &blob, &emb.Model, &emb.Version, &emb.CreatedAt, &emb.UpdatedAt); err != nil {
			return nil, err
		}
		emb.Vector = bytesToFloat32Slice(blob)
		embs = append(embs, &emb)
	}
	return embs, rows.Err()
}

// CountEmbeddings returns the total number of stored embeddings.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// --- clusters ---

// DeleteAllClusters removes every cluster row.
func (s *SQLiteStore) DeleteAllClusters(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM clusters`)
	return err
}

// InsertClusters inserts cluster rows in one transaction.
func (s *SQLiteStore) InsertClusters(ctx context.Context, clusters []*models.Cluster) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clusters (id, centroid, size, sample_note_id, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range clusters {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, c.ID, float32SliceToBytes(c.Centroid), c.Size, c.SampleNoteID, c.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListClusters returns all cluster rows.
func (s *SQLiteStore) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, centroid, size, sample_note_id, created_at FROM clusters ORDER BY size DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*models.Cluster
	for rows.Next() {
		var c models.Cluster
		var blob []byte
		if err := rows.Scan(&c.ID, &blob, &c.Size, &c.SampleNoteID, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Centroid = bytesToFloat32Slice(blob)
		clusters = append(clusters, &c)
	}
	return clusters, rows.Err()
}

// --- influence edges ---

// UpsertEdge inserts or overwrites the edge for its ordered (source, target)
// pair. An upsert refreshes created_at; decay ages run from the last write.
func (s *SQLiteStore) UpsertEdge(ctx context.Context, edge *models.InfluenceEdge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO influence_edges (source_note_id, target_note_id, weight, cosine_sim, drift_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_note_id, target_note_id) DO UPDATE SET
			weight = excluded.weight,
			cosine_sim = excluded.cosine_sim,
			drift_score = excluded.drift_score,
			created_at = excluded.created_at`,
		edge.SourceNoteID, edge.TargetNoteID, edge.Weight, edge.CosineSim, edge.DriftScore, edge.CreatedAt,
	)
	return err
}

// DeleteEdgesForNote removes all edges touching the note in either direction.
func (s *SQLiteStore) DeleteEdgesForNote(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM influence_edges WHERE source_note_id = ? OR target_note_id = ?`, noteID, noteID)
	return err
}

// DeleteAllEdges removes every edge.
func (s *SQLiteStore) DeleteAllEdges(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM influence_edges`)
	return err
}

const edgeColumns = `source_note_id, target_note_id, weight, cosine_sim, drift_score, created_at`

func (s *SQLiteStore) queryEdges(ctx context.Context, query string, args ...interface{}) ([]*models.InfluenceEdge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*models.InfluenceEdge
	for rows.Next() {
		var e models.InfluenceEdge
		if err := rows.Scan(&e.SourceNoteID, &e.TargetNoteID, &e.Weight, &e.CosineSim, &e.DriftScore, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// EdgesByTarget returns edges pointing at the note, heaviest first.
func (s *SQLiteStore) EdgesByTarget(ctx context.Context, noteID string, limit int) ([]*models.InfluenceEdge, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+` FROM influence_edges WHERE target_note_id = ? ORDER BY weight DESC LIMIT ?`,
		noteID, limit)
}

// EdgesBySource returns edges originating at the note, heaviest first.
func (s *SQLiteStore) EdgesBySource(ctx context.Context, noteID string, limit int) ([]*models.InfluenceEdge, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+` FROM influence_edges WHERE source_note_id = ? ORDER BY weight DESC LIMIT ?`,
		noteID, limit)
}

// AllEdges returns edges across the whole graph, heaviest first.
func (s *SQLiteStore) AllEdges(ctx context.Context, limit int) ([]*models.InfluenceEdge, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+` FROM influence_edges ORDER BY weight DESC LIMIT ?`, limit)
}

// --- history ---

// AddHistory inserts an edit snapshot.
func (s *SQLiteStore) AddHistory(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO note_history (id, note_id, diff, semantic_diff, old_cluster_id, new_cluster_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.NoteID, entry.Diff, entry.SemanticDiff,
		entry.OldClusterID, entry.NewClusterID, entry.CreatedAt,
	)
	return err
}

const historyColumns = `id, note_id, diff, semantic_diff, old_cluster_id, new_cluster_id, created_at`

func (s *SQLiteStore) queryHistory(ctx context.Context, query string, args ...interface{}) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.NoteID, &e.Diff, &e.SemanticDiff, &e.OldClusterID, &e.NewClusterID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// HistoryForNote returns the note's snapshots, newest first.
func (s *SQLiteStore) HistoryForNote(ctx context.Context, noteID string) ([]*models.HistoryEntry, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM note_history WHERE note_id = ? ORDER BY created_at DESC`, noteID)
}

// HistoryWithSemanticDiff returns every record with a positive semantic diff
// in store order (no chronological guarantee).
func (s *SQLiteStore) HistoryWithSemanticDiff(ctx context.Context) ([]*models.HistoryEntry, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM note_history WHERE semantic_diff > 0`)
}

// --- relations ---

// ReplaceRelations deletes all outgoing relations for the source note and
// inserts the new set in one transaction.
func (s *SQLiteStore) ReplaceRelations(ctx context.Context, sourceNoteID string, rels []*models.NoteRelation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM note_relations WHERE source_note_id = ?`, sourceNoteID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO note_relations (source_note_id, target_note_id, kind, score, created_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range rels {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, sourceNoteID, r.TargetNoteID, string(r.Kind), r.Score, r.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RelationsFrom returns the note's outgoing relations, best first.
func (s *SQLiteStore) RelationsFrom(ctx context.Context, noteID string) ([]*models.NoteRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_note_id, target_note_id, kind, score, created_at
		 FROM note_relations WHERE source_note_id = ? ORDER BY score DESC`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*models.NoteRelation
	for rows.Next() {
		var r models.NoteRelation
		var kind string
		if err := rows.Scan(&r.SourceNoteID, &r.TargetNoteID, &kind, &r.Score, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = models.RelationKind(kind)
		rels = append(rels, &r)
	}
	return rels, rows.Err()
}

// DeleteRelationsForNote removes relations touching the note in either direction.
func (s *SQLiteStore) DeleteRelationsForNote(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM note_relations WHERE source_note_id = ? OR target_note_id = ?`, noteID, noteID)
	return err
}

// --- jobs ---

// CreateJob persists a new job row.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, payload, result, error, progress, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Type), string(job.Status), string(payload),
		job.Result, job.Error, job.Progress, job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	return err
}

// UpdateJob overwrites the job's mutable fields.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *models.Job) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, error = ?, progress = ?, started_at = ?, finished_at = ?
		 WHERE id = ?`,
		string(job.Status), job.Result, job.Error, job.Progress, job.StartedAt, job.FinishedAt, job.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func scanJob(scan func(dest ...interface{}) error) (*models.Job, error) {
	var job models.Job
	var jobType, status string
	var payload sql.NullString
	err := scan(&job.ID, &jobType, &status, &payload, &job.Result, &job.Error,
		&job.Progress, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}
	job.Type = models.JobType(jobType)
	job.Status = models.JobStatus(status)
	if payload.Valid && payload.String != "" && payload.String != "null" {
		p, err := models.DecodeJobPayload(job.Type, []byte(payload.String))
		if err != nil {
			return nil, err
		}
		job.Payload = p
	}
	return &job, nil
}

const jobColumns = `id, type, status, payload, result, error, progress, created_at, started_at, finished_at`

// GetJob returns a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SaveWorkflow inserts or overwrites a workflow status record.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *models.WorkflowStatus) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	errs, err := json.Marshal(wf.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, result, steps, errors, cluster_job_id, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			result = excluded.result,
			steps = excluded.steps,
			errors = excluded.errors,
			cluster_job_id = excluded.cluster_job_id,
			finished_at = excluded.finished_at`,
		wf.ID, string(wf.Result), string(steps), string(errs), wf.ClusterJobID, wf.StartedAt, wf.FinishedAt,
	)
	return err
}

// GetWorkflow returns a workflow status by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowStatus, error) {
	var wf models.WorkflowStatus
	var result, steps string
	var errs sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, result, steps, errors, cluster_job_id, started_at, finished_at FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &result, &steps, &errs, &wf.ClusterJobID, &wf.StartedAt, &wf.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	wf.Result = models.WorkflowResult(result)
	if err := json.Unmarshal([]byte(steps), &wf.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	if errs.Valid && errs.String != "" && errs.String != "null" {
		if err := json.Unmarshal([]byte(errs.String), &wf.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}
	}
	return &wf, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vectors are stored as little-endian float32 blobs.

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
