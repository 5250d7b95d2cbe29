// Package queue implements the durable job queue and its retry policy.
// Jobs live in the store; the queue owns transitions and backoff scheduling
// while the store guarantees claim atomicity.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/google/uuid"
)

// JobStore is the persistence contract the queue runs on
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, jobID string) (*models.Job, error)
	ListPending(ctx context.Context, limit int, now time.Time) ([]*models.Job, error)
	Claim(ctx context.Context, jobID string) (*models.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
	Requeue(ctx context.Context, jobID string, runAfter time.Time) error
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)
}

// Queue coordinates job lifecycle transitions over a durable store
type Queue struct {
	store       JobStore
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
}

// Option configures a Queue
type Option func(*Queue)

// WithClock overrides the queue's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a queue over the given store. Non-positive maxAttempts or
// baseDelay fall back to the defaults of 3 attempts and 5 seconds.
func NewQueue(store JobStore, maxAttempts int, baseDelay time.Duration, opts ...Option) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}

	q := &Queue{
		store:       store,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue creates a new queued job with the given type and payload. The job
// is immediately eligible for pickup.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload interface{}) (*models.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode job payload", err)
	}

	now := q.now()
	job := &models.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     data,
		Status:      types.JobStatusQueued,
		Attempts:    0,
		MaxAttempts: q.maxAttempts,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.store.Create(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return q.store.GetByID(ctx, jobID)
}

// GetPendingJobs returns queued jobs whose backoff delay has elapsed, oldest
// first, up to limit
func (q *Queue) GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	return q.store.ListPending(ctx, limit, q.now())
}

// MarkRunning atomically claims a queued job, incrementing its attempt
// counter. Exactly one of any number of concurrent callers succeeds; the
// rest get AlreadyClaimed.
func (q *Queue) MarkRunning(ctx context.Context, jobID string) (*models.Job, error) {
	return q.store.Claim(ctx, jobID)
}

// MarkCompleted transitions a running job to completed
func (q *Queue) MarkCompleted(ctx context.Context, jobID string) error {
	return q.store.Complete(ctx, jobID)
}

// MarkFailed transitions a job to failed with the given reason
func (q *Queue) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return q.store.Fail(ctx, jobID, reason)
}

// Retry decides the fate of a running job after a retryable failure. If the
// job has attempts left it goes back to queued with a backoff delay and Retry
// returns true; otherwise the job is failed with a max-attempts reason and
// Retry returns false.
//
// The delay grows linearly with the attempt count, so consecutive retries of
// the same job never wait less than the previous one.
func (q *Queue) Retry(ctx context.Context, jobID string) (bool, error) {
	job, err := q.store.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}

	if job.Attempts >= job.MaxAttempts {
		maxErr := errors.NewMaxAttemptsExceededError(jobID, job.Attempts)
		if err := q.store.Fail(ctx, jobID, maxErr.Message); err != nil {
			return false, err
		}
		return false, nil
	}

	runAfter := q.now().Add(q.BackoffDelay(job.Attempts))
	if err := q.store.Requeue(ctx, jobID, runAfter); err != nil {
		return false, err
	}

	return true, nil
}

// ReleaseStale returns running jobs idle for longer than lease back to
// queued so another worker can claim them. A worker that dies mid-claim
// otherwise strands its job in running forever. A non-positive lease
// disables the sweep.
func (q *Queue) ReleaseStale(ctx context.Context, lease time.Duration) (int, error) {
	if lease <= 0 {
		return 0, nil
	}
	return q.store.ReleaseStale(ctx, q.now().Add(-lease))
}

// BackoffDelay returns the delay before a job with the given attempt count
// becomes eligible again
func (q *Queue) BackoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return q.baseDelay * time.Duration(attempts)
}
