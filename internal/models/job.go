package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType identifies a background job kind.
type JobType string

const (
	JobAnalyze        JobType = "ANALYZE"
	JobClusterRebuild JobType = "CLUSTER_REBUILD"
	JobIndexRebuild   JobType = "INDEX_REBUILD"
)

// JobStatus is the lifecycle state of a job. Completed and failed are terminal.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobPayload is the closed set of job payloads, one variant per JobType.
type JobPayload interface {
	JobType() JobType
}

// AnalyzePayload carries a per-note analyze request. UpdatedAt is the note's
// updatedAt at enqueue time; the worker skips the job when the note has been
// edited again since.
type AnalyzePayload struct {
	NoteID      string    `json:"note_id"`
	UpdatedAt   time.Time `json:"updated_at"`
	PrevContent string    `json:"prev_content,omitempty"`
	IsNew       bool      `json:"is_new,omitempty"`
}

// JobType implements JobPayload.
func (AnalyzePayload) JobType() JobType { return JobAnalyze }

// ClusterRebuildPayload carries a full clustering run request.
type ClusterRebuildPayload struct {
	K                    int   `json:"k,omitempty"`
	RegenerateEmbeddings *bool `json:"regenerate_embeddings,omitempty"`
}

// JobType implements JobPayload.
func (ClusterRebuildPayload) JobType() JobType { return JobClusterRebuild }

// RegenerateOrDefault returns whether to backfill embeddings; defaults to true when unset.
func (p ClusterRebuildPayload) RegenerateOrDefault() bool {
	if p.RegenerateEmbeddings != nil {
		return *p.RegenerateEmbeddings
	}
	return true
}

// IndexRebuildPayload carries a full vector index rebuild request.
type IndexRebuildPayload struct{}

// JobType implements JobPayload.
func (IndexRebuildPayload) JobType() JobType { return JobIndexRebuild }

// DecodeJobPayload parses a persisted payload by job type.
func DecodeJobPayload(t JobType, raw []byte) (JobPayload, error) {
	switch t {
	case JobAnalyze:
		var p AnalyzePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode analyze payload: %w", err)
		}
		return p, nil
	case JobClusterRebuild:
		var p ClusterRebuildPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode cluster rebuild payload: %w", err)
		}
		return p, nil
	case JobIndexRebuild:
		return IndexRebuildPayload{}, nil
	default:
		return nil, fmt.Errorf("unknown job type: %s", t)
	}
}

// Job is a persisted background job record. The runnable queue itself is
// in-memory only; these rows exist for observability and crash forensics.
type Job struct {
	ID         string     `json:"id" db:"id"`
	Type       JobType    `json:"type" db:"type"`
	Status     JobStatus  `json:"status" db:"status"`
	Payload    JobPayload `json:"payload,omitempty" db:"-"`
	Result     string     `json:"result,omitempty" db:"result"`
	Error      string     `json:"error,omitempty" db:"error"`
	Progress   int        `json:"progress" db:"progress"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// StepState is the state of one workflow step.
type StepState string

const (
	StepPending    StepState = "pending"
	StepInProgress StepState = "in_progress"
	StepCompleted  StepState = "completed"
	StepFailed     StepState = "failed"
	// StepEnqueued marks a step that was dispatched as an async job rather
	// than executed inline (the final cluster rebuild step).
	StepEnqueued StepState = "enqueued"
)

// StepProgress is the outcome of a single reconstruct workflow step.
type StepProgress struct {
	Name  string    `json:"name"`
	State StepState `json:"state"`
	Error string    `json:"error,omitempty"`
}

// WorkflowResult is the terminal classification of a reconstruct run.
type WorkflowResult string

const (
	WorkflowRunning   WorkflowResult = "running"
	WorkflowCompleted WorkflowResult = "completed"
	WorkflowPartial   WorkflowResult = "partial"
	WorkflowFailed    WorkflowResult = "failed"
)

// WorkflowStatus is one coarse-grained run of the reconstruct pipeline.
type WorkflowStatus struct {
	ID           string         `json:"id" db:"id"`
	Result       WorkflowResult `json:"result" db:"result"`
	Steps        []StepProgress `json:"steps" db:"-"`
	Errors       []string       `json:"errors,omitempty" db:"-"`
	ClusterJobID string         `json:"cluster_job_id,omitempty" db:"cluster_job_id"`
	StartedAt    time.Time      `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
}
