// Package jobs runs the background job queue and the reconstruct workflow.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
)

const queueCapacity = 1024

// Handler executes one job kind and returns a short result description.
type Handler func(ctx context.Context, payload models.JobPayload) (string, error)

// Queue is a FIFO job queue drained by exactly one worker goroutine. The
// runnable queue is in-memory; durable job rows exist for observability, and
// a job in flight when the process dies stays `running` in the store.
type Queue struct {
	store    storage.JobStore
	handlers map[models.JobType]Handler
	jobs     chan *models.Job
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewQueue creates a queue with no registered handlers.
func NewQueue(store storage.JobStore, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		store:    store,
		handlers: make(map[models.JobType]Handler),
		jobs:     make(chan *models.Job, queueCapacity),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (q *Queue) Register(t models.JobType, h Handler) {
	q.handlers[t] = h
}

// Start launches the single worker goroutine.
func (q *Queue) Start(ctx context.Context) {
	go q.drain(ctx)
}

// Stop shuts the worker down after the current job finishes.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
	<-q.done
}

// Enqueue persists a pending job row, pushes it onto the queue, and returns
// the job id immediately. Completion is observable only by polling GetJob.
func (q *Queue) Enqueue(ctx context.Context, payload models.JobPayload) (string, error) {
	if _, ok := q.handlers[payload.JobType()]; !ok {
		return "", fmt.Errorf("no handler for job type %s", payload.JobType())
	}

	job := &models.Job{
		ID:      uuid.New().String(),
		Type:    payload.JobType(),
		Status:  models.JobPending,
		Payload: payload,
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	select {
	case q.jobs <- job:
	default:
		// The job will never run; its durable row must not stay pending.
		now := time.Now()
		job.Status = models.JobFailed
		job.Error = "job queue full"
		job.FinishedAt = &now
		if err := q.store.UpdateJob(ctx, job); err != nil {
			q.logger.Error("failed to record dropped job",
				zap.String("id", job.ID), zap.Error(err))
		}
		return "", fmt.Errorf("job queue full")
	}

	q.logger.Debug("job enqueued",
		zap.String("id", job.ID), zap.String("type", string(job.Type)))
	return job.ID, nil
}

// GetJob returns the persisted status record for a job.
func (q *Queue) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return q.store.GetJob(ctx, id)
}

// drain runs jobs strictly one at a time. A job's failure is isolated: it is
// recorded on the job row and the loop moves on.
func (q *Queue) drain(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job *models.Job) {
	now := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &now
	if err := q.store.UpdateJob(ctx, job); err != nil {
		q.logger.Error("failed to mark job running",
			zap.String("id", job.ID), zap.Error(err))
	}

	handler := q.handlers[job.Type]
	result, err := handler(ctx, job.Payload)

	finished := time.Now()
	job.FinishedAt = &finished
	job.Progress = 100
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		q.logger.Warn("job failed",
			zap.String("id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Error(err))
	} else {
		job.Status = models.JobCompleted
		job.Result = result
	}
	if err := q.store.UpdateJob(ctx, job); err != nil {
		q.logger.Error("failed to record job outcome",
			zap.String("id", job.ID), zap.Error(err))
	}
}
