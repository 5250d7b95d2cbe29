package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/google/uuid"
)

func newTestRun(userID string) *models.TestRun {
	return &models.TestRun{
		ID:       uuid.New().String(),
		UserID:   userID,
		URL:      "https://example.com",
		Device:   types.DeviceMobile,
		Region:   "us-east-1",
		Status:   types.TestStatusQueued,
		QueuedAt: time.Now().UTC(),
	}
}

func TestTestRunRepository_CompleteLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestRunRepository(db)
	ctx := testContext(t)

	run := newTestRun("user-int-1")
	if err := repo.Create(ctx, run); err != nil {
		t.Skipf("Skipping test - test_runs table not available: %v", err)
	}

	started := time.Now().UTC()
	if err := repo.MarkRunning(ctx, run.ID, started); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	result := &models.TestResult{
		PerformanceScore:       91,
		AccessibilityScore:     82,
		BestPracticesScore:     100,
		SEOScore:               67,
		FirstContentfulPaint:   1830.2,
		LargestContentfulPaint: 2410.8,
		CumulativeLayoutShift:  0.012,
		TotalBlockingTime:      220.0,
		TimeToInteractive:      4100.5,
		SpeedIndex:             3012.3,
		TotalRequests:          42,
		TotalBytes:             2048576,
		RawResult:              json.RawMessage(`{"lighthouseResult":{}}`),
	}
	if err := repo.MarkCompleted(ctx, run.ID, time.Now().UTC(), result); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != types.TestStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.PerformanceScore == nil || *got.PerformanceScore != 91 {
		t.Errorf("Performance score = %v, want 91", got.PerformanceScore)
	}
	if got.TotalBytes == nil || *got.TotalBytes != 2048576 {
		t.Errorf("Total bytes = %v, want 2048576", got.TotalBytes)
	}
	if got.ErrorMessage != nil {
		t.Error("Completed run must not carry an error message")
	}
	if len(got.RawResult) == 0 {
		t.Error("Raw result must round-trip")
	}
}

func TestTestRunRepository_RequeueKeepsQueuedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestRunRepository(db)
	ctx := testContext(t)

	run := newTestRun("user-int-2")
	if err := repo.Create(ctx, run); err != nil {
		t.Skipf("Skipping test - test_runs table not available: %v", err)
	}

	if err := repo.MarkRunning(ctx, run.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := repo.Requeue(ctx, run.ID); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != types.TestStatusQueued {
		t.Errorf("Expected queued, got %s", got.Status)
	}
	if !got.QueuedAt.Truncate(time.Millisecond).Equal(run.QueuedAt.Truncate(time.Millisecond)) {
		t.Errorf("queued_at changed: was %v, now %v", run.QueuedAt, got.QueuedAt)
	}
}

func TestTestRunRepository_MarkFailed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestRunRepository(db)
	ctx := testContext(t)

	run := newTestRun("user-int-3")
	if err := repo.Create(ctx, run); err != nil {
		t.Skipf("Skipping test - test_runs table not available: %v", err)
	}

	if err := repo.MarkFailed(ctx, run.ID, time.Now().UTC(), "max retry attempts exceeded"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, run.ID)
	if got.Status != types.TestStatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "max retry attempts exceeded" {
		t.Errorf("Error message = %v", got.ErrorMessage)
	}
	if got.PerformanceScore != nil {
		t.Error("Failed run must not carry scores")
	}
}

func TestTestRunRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestRunRepository(db)
	ctx := testContext(t)

	_, err := repo.GetByID(ctx, uuid.New().String())
	if err == nil {
		t.Fatal("Expected error for missing run")
	}
	if !errors.IsNotFound(err) {
		// A missing table also lands here; only assert when the schema exists
		if !errors.IsStoreUnavailable(err) {
			t.Errorf("Expected NotFound or StoreUnavailable, got %v", err)
		}
	}
}
