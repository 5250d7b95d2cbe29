package storage

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/google/uuid"
)

func newTestJob() *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:          uuid.New().String(),
		Type:        types.JobTypePerformanceTest,
		Payload:     json.RawMessage(`{"test_run_id":"t1","url":"https://example.com","device":"mobile","region":"us-east-1"}`),
		Status:      types.JobStatusQueued,
		Attempts:    0,
		MaxAttempts: 3,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestJobRepository_ClaimLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := testContext(t)

	job := newTestJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Skipf("Skipping test - jobs table not available: %v", err)
	}

	claimed, err := repo.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claimed.Status != types.JobStatusRunning {
		t.Errorf("Expected running, got %s", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", claimed.Attempts)
	}

	// The second claim loses
	if _, err := repo.Claim(ctx, job.ID); !errors.IsAlreadyClaimed(err) {
		t.Errorf("Expected AlreadyClaimed, got %v", err)
	}

	if err := repo.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != types.JobStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
}

func TestJobRepository_ConcurrentClaims(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := testContext(t)

	job := newTestJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Skipf("Skipping test - jobs table not available: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Claim(ctx, job.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winning claim, got %d", wins)
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Attempts != 1 {
		t.Errorf("Expected attempts=1 after claim race, got %d", got.Attempts)
	}
}

func TestJobRepository_RequeueAndEligibility(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := testContext(t)

	job := newTestJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Skipf("Skipping test - jobs table not available: %v", err)
	}

	if _, err := repo.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	runAfter := time.Now().UTC().Add(time.Hour)
	if err := repo.Requeue(ctx, job.ID, runAfter); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	// Not eligible until run_after elapses
	pending, err := repo.ListPending(ctx, 100, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	for _, p := range pending {
		if p.ID == job.ID {
			t.Error("Requeued job must not be pending before run_after")
		}
	}

	pending, err = repo.ListPending(ctx, 100, runAfter.Add(time.Second))
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	found := false
	for _, p := range pending {
		if p.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Error("Requeued job must be pending once run_after elapses")
	}
}

func TestJobRepository_ReleaseStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := testContext(t)

	job := newTestJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Skipf("Skipping test - jobs table not available: %v", err)
	}

	if _, err := repo.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	// A cutoff in the past leaves the fresh claim alone
	if _, err := repo.ReleaseStale(ctx, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("ReleaseStale() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != types.JobStatusRunning {
		t.Fatalf("Fresh claim must survive the sweep, got %s", got.Status)
	}

	// A cutoff past the claim time releases it
	released, err := repo.ReleaseStale(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("ReleaseStale() error = %v", err)
	}
	if released < 1 {
		t.Errorf("Expected at least one released job, got %d", released)
	}

	got, _ = repo.GetByID(ctx, job.ID)
	if got.Status != types.JobStatusQueued {
		t.Errorf("Expected released job to be queued, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Release must not touch attempts, got %d", got.Attempts)
	}
}

func TestJobRepository_FailIsTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := testContext(t)

	job := newTestJob()
	if err := repo.Create(ctx, job); err != nil {
		t.Skipf("Skipping test - jobs table not available: %v", err)
	}

	if err := repo.Fail(ctx, job.ID, "provider rejected the request"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != types.JobStatusFailed {
		t.Fatalf("Expected failed, got %s", got.Status)
	}
	if got.Error == nil || *got.Error == "" {
		t.Error("Failed job must carry a reason")
	}

	// No transitions out of a terminal state
	if _, err := repo.Claim(ctx, job.ID); err == nil {
		t.Error("Expected claim of failed job to be rejected")
	}
	if err := repo.Fail(ctx, job.ID, "again"); err == nil {
		t.Error("Expected second Fail to be rejected")
	}
}
