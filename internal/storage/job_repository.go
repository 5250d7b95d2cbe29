package storage

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_after, created_at, updated_at, error`

// JobRepository handles job persistence. All store I/O failures surface as
// StoreUnavailable; retry policy lives with the caller, never here.
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		job.Type,
		job.Payload,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.RunAfter,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("create job", err)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	row := r.db.Pool().QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("job", jobID)
		}
		return nil, errors.NewStoreUnavailableError("get job", err)
	}

	return job, nil
}

// ListPending returns queued jobs whose backoff delay has elapsed, oldest
// first. The result is a fresh snapshot on every call, not a live iterator.
func (r *JobRepository) ListPending(ctx context.Context, limit int, now time.Time) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND run_after <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, types.JobStatusQueued, now, limit)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("list pending jobs", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.NewStoreUnavailableError("scan pending job", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailableError("iterate pending jobs", err)
	}

	return jobs, nil
}

// Claim atomically transitions a job from queued to running, incrementing the
// attempt counter in the same statement. The conditional update is the sole
// synchronization primitive: two workers racing on the same job see exactly
// one success and one AlreadyClaimed.
func (r *JobRepository) Claim(ctx context.Context, jobID string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + jobColumns

	row := r.db.Pool().QueryRow(ctx, query, jobID, types.JobStatusRunning, time.Now().UTC(), types.JobStatusQueued)
	job, err := scanJob(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, r.claimFailure(ctx, jobID)
		}
		return nil, errors.NewStoreUnavailableError("claim job", err)
	}

	return job, nil
}

// claimFailure distinguishes a missing job from a lost claim race
func (r *JobRepository) claimFailure(ctx context.Context, jobID string) error {
	if _, err := r.GetByID(ctx, jobID); err != nil {
		return err
	}
	return errors.NewAlreadyClaimedError(jobID)
}

// Complete transitions a job from running to completed. Terminal.
func (r *JobRepository) Complete(ctx context.Context, jobID string) error {
	return r.transition(ctx, jobID, types.JobStatusRunning, types.JobStatusCompleted, nil)
}

// Fail transitions a job to failed from any non-terminal status. Terminal.
func (r *JobRepository) Fail(ctx context.Context, jobID string, reason string) error {
	query := `
		UPDATE jobs
		SET status = $2, error = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ($5, $6)
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		jobID,
		types.JobStatusFailed,
		reason,
		time.Now().UTC(),
		types.JobStatusCompleted,
		types.JobStatusFailed,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionFailure(ctx, jobID, types.JobStatusFailed)
	}

	return nil
}

// Requeue transitions a job from running back to queued with a new backoff
// eligibility time. Used only by the retry path.
func (r *JobRepository) Requeue(ctx context.Context, jobID string, runAfter time.Time) error {
	query := `
		UPDATE jobs
		SET status = $2, run_after = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		jobID,
		types.JobStatusQueued,
		runAfter,
		time.Now().UTC(),
		types.JobStatusRunning,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("requeue job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionFailure(ctx, jobID, types.JobStatusQueued)
	}

	return nil
}

// ReleaseStale returns running jobs whose last transition predates olderThan
// back to queued, immediately eligible. A worker that dies after claiming
// leaves its job in running; the sweep makes it claimable again without
// spending an attempt.
func (r *JobRepository) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		UPDATE jobs
		SET status = $2, run_after = $3, updated_at = $3
		WHERE status = $4 AND updated_at < $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		olderThan,
		types.JobStatusQueued,
		time.Now().UTC(),
		types.JobStatusRunning,
	)
	if err != nil {
		return 0, errors.NewStoreUnavailableError("release stale jobs", err)
	}

	return int(tag.RowsAffected()), nil
}

// transition performs a conditional single-status transition
func (r *JobRepository) transition(ctx context.Context, jobID string, from, to types.JobStatus, reason *string) error {
	query := `
		UPDATE jobs
		SET status = $2, error = COALESCE($3, error), updated_at = $4
		WHERE id = $1 AND status = $5
	`

	tag, err := r.db.Pool().Exec(ctx, query, jobID, to, reason, time.Now().UTC(), from)
	if err != nil {
		return errors.NewStoreUnavailableError("transition job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionFailure(ctx, jobID, to)
	}

	return nil
}

// transitionFailure distinguishes a missing job from a disallowed transition
func (r *JobRepository) transitionFailure(ctx context.Context, jobID string, to types.JobStatus) error {
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	return errors.NewInvalidTransitionError(jobID, job.Status, to)
}

// scanJob scans a job from a row
func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var errMsg *string

	err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RunAfter,
		&job.CreatedAt,
		&job.UpdatedAt,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	job.Error = errMsg
	return &job, nil
}
