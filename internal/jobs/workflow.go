package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
)

// Embedder re-embeds note text during the regeneration step.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TextReindexer rebuilds the full-text index wholesale.
type TextReindexer interface {
	Reindex(ctx context.Context, notes []*models.Note) error
}

// IndexRebuilder rebuilds the vector index from stored embeddings.
type IndexRebuilder interface {
	Build(ctx context.Context) error
}

// InfluenceRebuilder clears and replays the influence graph.
type InfluenceRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// Orchestrator runs the reconstruct workflow: a fixed sequence of recovery
// steps, each isolated so one failure never halts the rest.
type Orchestrator struct {
	store     storage.Store
	embedder  Embedder
	text      TextReindexer
	index     IndexRebuilder
	influence InfluenceRebuilder
	queue     *Queue
	model     string
	version   string
	logger    *zap.Logger
}

// NewOrchestrator wires the workflow's collaborators.
func NewOrchestrator(
	store storage.Store,
	embedder Embedder,
	text TextReindexer,
	index IndexRebuilder,
	influence InfluenceRebuilder,
	queue *Queue,
	model, version string,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		embedder:  embedder,
		text:      text,
		index:     index,
		influence: influence,
		queue:     queue,
		model:     model,
		version:   version,
		logger:    logger,
	}
}

type workflowStep struct {
	name string
	run  func(ctx context.Context) error
}

// Reconstruct runs every step in order and persists a WorkflowStatus after
// each one. The clustering step runs last and is dispatched as an async
// enqueue rather than awaited, so it never contends for write locks with the
// synchronous steps.
func (o *Orchestrator) Reconstruct(ctx context.Context) (*models.WorkflowStatus, error) {
	wf := &models.WorkflowStatus{
		ID:        uuid.New().String(),
		Result:    models.WorkflowRunning,
		StartedAt: time.Now(),
	}

	steps := []workflowStep{
		{"regenerate_embeddings", o.regenerateEmbeddings},
		{"fulltext_reindex", o.reindexFullText},
		{"vector_index_rebuild", o.rebuildVectorIndex},
		{"influence_rebuild", o.rebuildInfluence},
		{"cluster_dynamics", o.captureClusterDynamics},
		{"decay_snapshot", o.captureDecaySnapshot},
	}

	wf.Steps = make([]models.StepProgress, 0, len(steps)+1)
	for _, s := range steps {
		wf.Steps = append(wf.Steps, models.StepProgress{Name: s.name, State: models.StepPending})
	}
	wf.Steps = append(wf.Steps, models.StepProgress{Name: "cluster_rebuild", State: models.StepPending})
	if err := o.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}

	succeeded, failed := 0, 0
	for i, s := range steps {
		wf.Steps[i].State = models.StepInProgress
		_ = o.store.SaveWorkflow(ctx, wf)

		if err := s.run(ctx); err != nil {
			failed++
			wf.Steps[i].State = models.StepFailed
			wf.Steps[i].Error = err.Error()
			wf.Errors = append(wf.Errors, fmt.Sprintf("%s: %v", s.name, err))
			o.logger.Warn("workflow step failed",
				zap.String("step", s.name), zap.Error(err))
		} else {
			succeeded++
			wf.Steps[i].State = models.StepCompleted
		}
		_ = o.store.SaveWorkflow(ctx, wf)
	}

	// Clustering last, async: completion is observable via the job id.
	last := len(wf.Steps) - 1
	jobID, err := o.queue.Enqueue(ctx, models.ClusterRebuildPayload{})
	if err != nil {
		failed++
		wf.Steps[last].State = models.StepFailed
		wf.Steps[last].Error = err.Error()
		wf.Errors = append(wf.Errors, fmt.Sprintf("cluster_rebuild: %v", err))
	} else {
		succeeded++
		wf.Steps[last].State = models.StepEnqueued
		wf.ClusterJobID = jobID
	}

	switch {
	case failed == 0:
		wf.Result = models.WorkflowCompleted
	case succeeded > 0:
		wf.Result = models.WorkflowPartial
	default:
		wf.Result = models.WorkflowFailed
	}
	finished := time.Now()
	wf.FinishedAt = &finished
	if err := o.store.SaveWorkflow(ctx, wf); err != nil {
		return wf, fmt.Errorf("failed to persist workflow result: %w", err)
	}

	o.logger.Info("reconstruct finished",
		zap.String("workflow", wf.ID),
		zap.String("result", string(wf.Result)),
		zap.Int("failedSteps", failed))
	return wf, nil
}

// GetWorkflow returns the persisted status record for a workflow run.
func (o *Orchestrator) GetWorkflow(ctx context.Context, id string) (*models.WorkflowStatus, error) {
	return o.store.GetWorkflow(ctx, id)
}

// regenerateEmbeddings re-embeds every note and replaces its stored vector.
func (o *Orchestrator) regenerateEmbeddings(ctx context.Context) error {
	notes, err := o.store.ListNotes(ctx)
	if err != nil {
		return err
	}
	failures := 0
	for _, note := range notes {
		vec, err := o.embedder.Embed(ctx, note.Title+"\n"+note.Content)
		if err != nil {
			failures++
			continue
		}
		err = o.store.SaveEmbedding(ctx, &models.Embedding{
			NoteID:  note.ID,
			Vector:  vec,
			Model:   o.model,
			Version: o.version,
		})
		if err != nil {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d notes failed to re-embed", failures, len(notes))
	}
	return nil
}

func (o *Orchestrator) reindexFullText(ctx context.Context) error {
	if o.text == nil {
		return nil
	}
	notes, err := o.store.ListNotes(ctx)
	if err != nil {
		return err
	}
	return o.text.Reindex(ctx, notes)
}

func (o *Orchestrator) rebuildVectorIndex(ctx context.Context) error {
	return o.index.Build(ctx)
}

func (o *Orchestrator) rebuildInfluence(ctx context.Context) error {
	_, err := o.influence.Rebuild(ctx)
	return err
}

// captureClusterDynamics logs the current cluster size distribution so runs
// can be compared before and after a reconstruct.
func (o *Orchestrator) captureClusterDynamics(ctx context.Context) error {
	clusters, err := o.store.ListClusters(ctx)
	if err != nil {
		return err
	}
	sizes := make([]int, len(clusters))
	for i, c := range clusters {
		sizes[i] = c.Size
	}
	o.logger.Info("cluster dynamics", zap.Int("clusters", len(clusters)), zap.Ints("sizes", sizes))
	return nil
}

// captureDecaySnapshot logs edge counts so decay drift across reconstructs
// is visible in the logs.
func (o *Orchestrator) captureDecaySnapshot(ctx context.Context) error {
	edges, err := o.store.AllEdges(ctx, 0)
	if err != nil {
		return err
	}
	total := 0.0
	for _, e := range edges {
		total += e.Weight
	}
	o.logger.Info("influence snapshot",
		zap.Int("edges", len(edges)), zap.Float64("totalWeight", total))
	return nil
}
