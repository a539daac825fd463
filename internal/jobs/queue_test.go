package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
)

func newTestQueue(t *testing.T) (*Queue, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewQueue(store, nil), store
}

func waitForStatus(t *testing.T, store *storage.SQLiteStore, id string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestEnqueueReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	started := make(chan struct{})
	release := make(chan struct{})
	q.Register(models.JobIndexRebuild, func(ctx context.Context, _ models.JobPayload) (string, error) {
		close(started)
		<-release
		return "done", nil
	})
	q.Start(ctx)
	defer func() {
		close(release)
		q.Stop()
	}()

	id, err := q.Enqueue(ctx, models.IndexRebuildPayload{})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty job id")
	}

	// The row is pending or running while the handler blocks; Enqueue did
	// not wait for completion.
	<-started
	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status == models.JobCompleted {
		t.Error("enqueue waited for execution")
	}
}

func TestJobLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	q.Register(models.JobIndexRebuild, func(ctx context.Context, _ models.JobPayload) (string, error) {
		return "rebuilt", nil
	})
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, models.IndexRebuildPayload{})
	if err != nil {
		t.Fatal(err)
	}

	job := waitForStatus(t, store, id, models.JobCompleted)
	if job.Result != "rebuilt" {
		t.Errorf("result = %q", job.Result)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Error("timestamps not recorded")
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
}

func TestFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	q.Register(models.JobIndexRebuild, func(ctx context.Context, _ models.JobPayload) (string, error) {
		return "", errors.New("boom")
	})
	q.Register(models.JobClusterRebuild, func(ctx context.Context, _ models.JobPayload) (string, error) {
		return "ok", nil
	})
	q.Start(ctx)
	defer q.Stop()

	failID, err := q.Enqueue(ctx, models.IndexRebuildPayload{})
	if err != nil {
		t.Fatal(err)
	}
	okID, err := q.Enqueue(ctx, models.ClusterRebuildPayload{})
	if err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, store, failID, models.JobFailed)
	if failed.Error != "boom" {
		t.Errorf("error = %q", failed.Error)
	}
	// The failing job must not take the worker down.
	waitForStatus(t, store, okID, models.JobCompleted)
}

func TestEnqueueOverflowMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)
	q.Register(models.JobIndexRebuild, func(ctx context.Context, _ models.JobPayload) (string, error) {
		return "", nil
	})

	// Worker never started: the channel fills and the next enqueue overflows.
	for i := 0; i < queueCapacity; i++ {
		if _, err := q.Enqueue(ctx, models.IndexRebuildPayload{}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := q.Enqueue(ctx, models.IndexRebuildPayload{}); err == nil {
		t.Fatal("expected overflow error")
	}

	all, err := store.ListJobs(ctx, queueCapacity+10)
	if err != nil {
		t.Fatal(err)
	}
	failed := 0
	for _, j := range all {
		switch j.Status {
		case models.JobFailed:
			failed++
			if j.Error != "job queue full" {
				t.Errorf("error = %q", j.Error)
			}
			if j.FinishedAt == nil {
				t.Error("finished timestamp not recorded")
			}
		case models.JobPending:
		default:
			t.Errorf("unexpected status %s", j.Status)
		}
	}
	if failed != 1 {
		t.Errorf("failed rows = %d, want 1", failed)
	}
}

func TestEnqueueUnknownTypeRejected(t *testing.T) {
	q, _ := newTestQueue(t)
	if _, err := q.Enqueue(context.Background(), models.IndexRebuildPayload{}); err == nil {
		t.Error("expected error for unregistered job type")
	}
}

func TestFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	var mu sync.Mutex
	var order []string
	q.Register(models.JobAnalyze, func(ctx context.Context, p models.JobPayload) (string, error) {
		mu.Lock()
		order = append(order, p.(models.AnalyzePayload).NoteID)
		mu.Unlock()
		return "", nil
	})
	q.Start(ctx)
	defer q.Stop()

	var last string
	for _, id := range []string{"a", "b", "c"} {
		jobID, err := q.Enqueue(ctx, models.AnalyzePayload{NoteID: id, UpdatedAt: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
		last = jobID
	}
	waitForStatus(t, store, last, models.JobCompleted)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("execution order = %v, want [a b c]", order)
	}
}
