package worker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/queue"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// fakeJobStore serves a fixed pending list and flips to empty once jobs are
// handed out, optionally failing the first polls. Jobs in stale become
// pending when ReleaseStale is called.
type fakeJobStore struct {
	mu        sync.Mutex
	pending   []*models.Job
	stale     []*models.Job
	pollFails int
	polls     int
	releases  int
}

func (s *fakeJobStore) Create(_ context.Context, _ *models.Job) error { return nil }

func (s *fakeJobStore) GetByID(_ context.Context, jobID string) (*models.Job, error) {
	return nil, errors.NewNotFoundError("job", jobID)
}

func (s *fakeJobStore) ListPending(_ context.Context, limit int, _ time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.polls <= s.pollFails {
		return nil, errors.NewStoreUnavailableError("list pending jobs", nil)
	}
	out := s.pending
	if len(out) > limit {
		out = out[:limit]
	}
	s.pending = nil
	return out, nil
}

func (s *fakeJobStore) Claim(_ context.Context, jobID string) (*models.Job, error) {
	return nil, errors.NewAlreadyClaimedError(jobID)
}

func (s *fakeJobStore) Complete(_ context.Context, _ string) error { return nil }

func (s *fakeJobStore) Fail(_ context.Context, _ string, _ string) error { return nil }

func (s *fakeJobStore) Requeue(_ context.Context, _ string, _ time.Time) error { return nil }

func (s *fakeJobStore) ReleaseStale(_ context.Context, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	released := len(s.stale)
	s.pending = append(s.pending, s.stale...)
	s.stale = nil
	return released, nil
}

// recordingExecutor signals each executed job ID on a channel
type recordingExecutor struct {
	executed chan string
}

func (e *recordingExecutor) Execute(_ context.Context, jobID string) error {
	e.executed <- jobID
	return nil
}

func testLogger() *logging.Logger {
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	logger.SetOutput(io.Discard)
	return logger
}

func pendingJob(id string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:        id,
		Type:      types.JobTypePerformanceTest,
		Status:    types.JobStatusQueued,
		RunAfter:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWorker_DispatchesPendingJobs(t *testing.T) {
	store := &fakeJobStore{pending: []*models.Job{pendingJob("job-1"), pendingJob("job-2")}}
	q := queue.NewQueue(store, 3, time.Second)
	executor := &recordingExecutor{executed: make(chan string, 4)}

	w := NewWorker(q, executor, testLogger(), 10*time.Millisecond, 0, 10, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-executor.executed:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for job %d to execute", i+1)
		}
	}

	if !got["job-1"] || !got["job-2"] {
		t.Errorf("Expected both jobs executed, got %v", got)
	}
}

func TestWorker_RecoversFromStoreOutage(t *testing.T) {
	store := &fakeJobStore{
		pending:   []*models.Job{pendingJob("job-1")},
		pollFails: 2,
	}
	q := queue.NewQueue(store, 3, time.Second)
	executor := &recordingExecutor{executed: make(chan string, 1)}

	w := NewWorker(q, executor, testLogger(), 10*time.Millisecond, 0, 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	select {
	case id := <-executor.executed:
		if id != "job-1" {
			t.Errorf("Expected job-1, got %s", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Worker did not recover from store outage")
	}
}

func TestWorker_ReleasesStaleClaims(t *testing.T) {
	// A job abandoned by a dead worker only becomes pending again once the
	// sweep releases it
	store := &fakeJobStore{stale: []*models.Job{pendingJob("job-stale")}}
	q := queue.NewQueue(store, 3, time.Second)
	executor := &recordingExecutor{executed: make(chan string, 1)}

	w := NewWorker(q, executor, testLogger(), 10*time.Millisecond, time.Minute, 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	select {
	case id := <-executor.executed:
		if id != "job-stale" {
			t.Errorf("Expected job-stale, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stale job was never released and dispatched")
	}

	store.mu.Lock()
	releases := store.releases
	store.mu.Unlock()
	if releases == 0 {
		t.Error("Expected the worker to sweep stale claims")
	}
}

func TestWorker_StopWaitsForInflight(t *testing.T) {
	store := &fakeJobStore{pending: []*models.Job{pendingJob("job-1")}}
	q := queue.NewQueue(store, 3, time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	executor := executorFunc(func(_ context.Context, _ string) error {
		close(started)
		<-release
		close(done)
		return nil
	})

	w := NewWorker(q, executor, testLogger(), 10*time.Millisecond, 0, 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Job never started")
	}

	stopDone := make(chan struct{})
	go func() {
		w.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while a job was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after in-flight job finished")
	}

	<-done
}

// executorFunc adapts a function to the Executor interface
type executorFunc func(ctx context.Context, jobID string) error

func (f executorFunc) Execute(ctx context.Context, jobID string) error {
	return f(ctx, jobID)
}
