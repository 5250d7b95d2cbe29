package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// memJobStore is an in-memory JobStore with the same transition semantics as
// the Postgres repository
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.Job)}
}

func copyJob(job *models.Job) *models.Job {
	c := *job
	return &c
}

func (s *memJobStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *memJobStore) GetByID(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.NewNotFoundError("job", jobID)
	}
	return copyJob(job), nil
}

func (s *memJobStore) ListPending(_ context.Context, limit int, now time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*models.Job
	for _, job := range s.jobs {
		if job.Status == types.JobStatusQueued && !job.RunAfter.After(now) {
			pending = append(pending, copyJob(job))
		}
	}
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *memJobStore) Claim(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.NewNotFoundError("job", jobID)
	}
	if job.Status != types.JobStatusQueued {
		return nil, errors.NewAlreadyClaimedError(jobID)
	}
	job.Status = types.JobStatusRunning
	job.Attempts++
	job.UpdatedAt = time.Now().UTC()
	return copyJob(job), nil
}

func (s *memJobStore) Complete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.NewNotFoundError("job", jobID)
	}
	if job.Status != types.JobStatusRunning {
		return errors.NewInvalidTransitionError(jobID, job.Status, types.JobStatusCompleted)
	}
	job.Status = types.JobStatusCompleted
	return nil
}

func (s *memJobStore) Fail(_ context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.NewNotFoundError("job", jobID)
	}
	if job.Status.Terminal() {
		return errors.NewInvalidTransitionError(jobID, job.Status, types.JobStatusFailed)
	}
	job.Status = types.JobStatusFailed
	job.Error = &reason
	return nil
}

func (s *memJobStore) Requeue(_ context.Context, jobID string, runAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.NewNotFoundError("job", jobID)
	}
	if job.Status != types.JobStatusRunning {
		return errors.NewInvalidTransitionError(jobID, job.Status, types.JobStatusQueued)
	}
	job.Status = types.JobStatusQueued
	job.RunAfter = runAfter
	return nil
}

func (s *memJobStore) ReleaseStale(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	released := 0
	for _, job := range s.jobs {
		if job.Status == types.JobStatusRunning && job.UpdatedAt.Before(olderThan) {
			job.Status = types.JobStatusQueued
			job.RunAfter = now
			job.UpdatedAt = now
			released++
		}
	}
	return released, nil
}

func TestEnqueue_Defaults(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 3, 5*time.Second)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, types.JobTypePerformanceTest, map[string]string{"test_run_id": "abc"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if job.Status != types.JobStatusQueued {
		t.Errorf("Expected status queued, got %s", job.Status)
	}
	if job.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", job.Attempts)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("Expected max attempts 3, got %d", job.MaxAttempts)
	}
	if job.RunAfter.After(time.Now().UTC()) {
		t.Error("New job should be immediately eligible")
	}
}

func TestMarkRunning_IncrementsAttempts(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 3, 5*time.Second)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)

	claimed, err := q.MarkRunning(ctx, job.ID)
	if err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if claimed.Status != types.JobStatusRunning {
		t.Errorf("Expected status running, got %s", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("Expected 1 attempt after claim, got %d", claimed.Attempts)
	}
}

func TestMarkRunning_SecondClaimRejected(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 3, 5*time.Second)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)

	if _, err := q.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("First claim failed: %v", err)
	}

	_, err := q.MarkRunning(ctx, job.ID)
	if !errors.IsAlreadyClaimed(err) {
		t.Errorf("Expected AlreadyClaimed, got %v", err)
	}
}

func TestMarkRunning_ConcurrentClaims(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 3, 5*time.Second)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.MarkRunning(ctx, job.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful claim, got %d", wins)
	}

	got, _ := q.GetJob(ctx, job.ID)
	if got.Attempts != 1 {
		t.Errorf("Expected 1 attempt after claim race, got %d", got.Attempts)
	}
}

func TestRetry_RequeuesWithBackoff(t *testing.T) {
	store := newMemJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue(store, 3, 5*time.Second, WithClock(func() time.Time { return base }))
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)
	if _, err := q.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	retried, err := q.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if !retried {
		t.Fatal("Expected retry to requeue the job")
	}

	got, _ := q.GetJob(ctx, job.ID)
	if got.Status != types.JobStatusQueued {
		t.Errorf("Expected status queued after retry, got %s", got.Status)
	}
	// attempts=1, so the delay is baseDelay*1
	wantRunAfter := base.Add(5 * time.Second)
	if !got.RunAfter.Equal(wantRunAfter) {
		t.Errorf("Expected run_after %v, got %v", wantRunAfter, got.RunAfter)
	}

	// The job is not eligible until the delay elapses
	pending, _ := q.GetPendingJobs(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("Expected no pending jobs before backoff elapses, got %d", len(pending))
	}
}

func TestRetry_ExhaustedAttemptsFails(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 2, time.Second)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)

	// Consume both attempts
	for i := 0; i < 2; i++ {
		if _, err := q.MarkRunning(ctx, job.ID); err != nil {
			t.Fatalf("Claim %d failed: %v", i+1, err)
		}
		retried, err := q.Retry(ctx, job.ID)
		if err != nil {
			t.Fatalf("Retry %d error = %v", i+1, err)
		}
		if i == 0 && !retried {
			t.Fatal("Expected first retry to requeue")
		}
		if i == 1 && retried {
			t.Fatal("Expected second retry to give up")
		}
		if retried {
			// Make the job eligible again without waiting
			store.mu.Lock()
			store.jobs[job.ID].RunAfter = time.Now().UTC().Add(-time.Second)
			store.mu.Unlock()
		}
	}

	got, _ := q.GetJob(ctx, job.ID)
	if got.Status != types.JobStatusFailed {
		t.Errorf("Expected status failed after exhausting attempts, got %s", got.Status)
	}
	if got.Error == nil || *got.Error != "max retry attempts exceeded" {
		t.Errorf("Expected max attempts error message, got %v", got.Error)
	}
	if got.Attempts != 2 {
		t.Errorf("Expected attempts to stay at max, got %d", got.Attempts)
	}
}

func TestReleaseStale_RequeuesAbandonedClaims(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 3, time.Second)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)
	if _, err := q.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	// A fresh claim is still inside its lease
	released, err := q.ReleaseStale(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ReleaseStale() error = %v", err)
	}
	if released != 0 {
		t.Fatalf("Fresh claim must not be released, got %d", released)
	}

	// Age the claim past the lease
	store.mu.Lock()
	store.jobs[job.ID].UpdatedAt = time.Now().UTC().Add(-2 * time.Minute)
	store.mu.Unlock()

	released, err = q.ReleaseStale(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ReleaseStale() error = %v", err)
	}
	if released != 1 {
		t.Fatalf("Expected one released job, got %d", released)
	}

	got, _ := q.GetJob(ctx, job.ID)
	if got.Status != types.JobStatusQueued {
		t.Errorf("Expected released job queued, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Release must not touch attempts, got %d", got.Attempts)
	}

	pending, _ := q.GetPendingJobs(ctx, 10)
	if len(pending) != 1 || pending[0].ID != job.ID {
		t.Errorf("Released job must be immediately eligible, pending = %v", pending)
	}

	// A non-positive lease disables the sweep entirely
	if n, err := q.ReleaseStale(ctx, 0); n != 0 || err != nil {
		t.Errorf("Disabled sweep must be a no-op, got (%d, %v)", n, err)
	}
}

func TestMarkCompleted_Terminal(t *testing.T) {
	store := newMemJobStore()
	q := NewQueue(store, 3, time.Second)
	ctx := context.Background()

	job, _ := q.Enqueue(ctx, types.JobTypePerformanceTest, nil)
	if _, err := q.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := q.MarkCompleted(ctx, job.ID); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	// Terminal states admit no further transitions
	if _, err := q.MarkRunning(ctx, job.ID); err == nil {
		t.Error("Expected claim of completed job to fail")
	}
	if err := q.MarkFailed(ctx, job.ID, "late failure"); err == nil {
		t.Error("Expected failing a completed job to fail")
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	q := NewQueue(newMemJobStore(), 10, 3*time.Second)

	properties := gopter.NewProperties(nil)

	properties.Property("backoff never decreases with attempts", prop.ForAll(
		func(attempts int) bool {
			return q.BackoffDelay(attempts+1) >= q.BackoffDelay(attempts)
		},
		gen.IntRange(0, 1000),
	))

	properties.Property("backoff is at least the base delay", prop.ForAll(
		func(attempts int) bool {
			return q.BackoffDelay(attempts) >= 3*time.Second
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
