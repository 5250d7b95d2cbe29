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

const testRunColumns = `id, user_id, url, device, region, status, queued_at, started_at, completed_at, error_message,
	performance_score, accessibility_score, best_practices_score, seo_score,
	first_contentful_paint, largest_contentful_paint, cumulative_layout_shift,
	total_blocking_time, time_to_interactive, speed_index,
	total_requests, total_bytes, raw_result`

// TestRunRepository handles test run persistence. Rows are created and
// mutated only by the orchestrator and never deleted here.
type TestRunRepository struct {
	db *PostgresDB
}

// NewTestRunRepository creates a new test run repository
func NewTestRunRepository(db *PostgresDB) *TestRunRepository {
	return &TestRunRepository{db: db}
}

// Create inserts a new test run in queued status
func (r *TestRunRepository) Create(ctx context.Context, run *models.TestRun) error {
	query := `
		INSERT INTO test_runs (id, user_id, url, device, region, status, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		run.ID,
		run.UserID,
		run.URL,
		run.Device,
		run.Region,
		run.Status,
		run.QueuedAt,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("create test run", err)
	}

	return nil
}

// GetByID retrieves a test run by ID
func (r *TestRunRepository) GetByID(ctx context.Context, testID string) (*models.TestRun, error) {
	query := `SELECT ` + testRunColumns + ` FROM test_runs WHERE id = $1`

	row := r.db.Pool().QueryRow(ctx, query, testID)
	run, err := scanTestRun(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("test run", testID)
		}
		return nil, errors.NewStoreUnavailableError("get test run", err)
	}

	return run, nil
}

// ListByUser retrieves a user's most recent test runs
func (r *TestRunRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.TestRun, error) {
	query := `
		SELECT ` + testRunColumns + `
		FROM test_runs
		WHERE user_id = $1
		ORDER BY queued_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("list test runs", err)
	}
	defer rows.Close()

	var runs []*models.TestRun
	for rows.Next() {
		run, err := scanTestRun(rows)
		if err != nil {
			return nil, errors.NewStoreUnavailableError("scan test run", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailableError("iterate test runs", err)
	}

	return runs, nil
}

// MarkRunning sets a test run to running with its start time
func (r *TestRunRepository) MarkRunning(ctx context.Context, testID string, startedAt time.Time) error {
	query := `UPDATE test_runs SET status = $2, started_at = $3 WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, testID, types.TestStatusRunning, startedAt)
	if err != nil {
		return errors.NewStoreUnavailableError("mark test run running", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("test run", testID)
	}

	return nil
}

// Requeue sets a test run back to queued ahead of a retry attempt. The
// original queued_at is deliberately left untouched.
func (r *TestRunRepository) Requeue(ctx context.Context, testID string) error {
	query := `UPDATE test_runs SET status = $2 WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, testID, types.TestStatusQueued)
	if err != nil {
		return errors.NewStoreUnavailableError("requeue test run", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("test run", testID)
	}

	return nil
}

// MarkCompleted writes the mapped result fields and transitions to completed
func (r *TestRunRepository) MarkCompleted(ctx context.Context, testID string, completedAt time.Time, result *models.TestResult) error {
	query := `
		UPDATE test_runs
		SET status = $2, completed_at = $3,
			performance_score = $4, accessibility_score = $5, best_practices_score = $6, seo_score = $7,
			first_contentful_paint = $8, largest_contentful_paint = $9, cumulative_layout_shift = $10,
			total_blocking_time = $11, time_to_interactive = $12, speed_index = $13,
			total_requests = $14, total_bytes = $15, raw_result = $16
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		testID,
		types.TestStatusCompleted,
		completedAt,
		result.PerformanceScore,
		result.AccessibilityScore,
		result.BestPracticesScore,
		result.SEOScore,
		result.FirstContentfulPaint,
		result.LargestContentfulPaint,
		result.CumulativeLayoutShift,
		result.TotalBlockingTime,
		result.TimeToInteractive,
		result.SpeedIndex,
		result.TotalRequests,
		result.TotalBytes,
		result.RawResult,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("complete test run", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("test run", testID)
	}

	return nil
}

// MarkFailed transitions a test run to failed with a human-readable cause
func (r *TestRunRepository) MarkFailed(ctx context.Context, testID string, completedAt time.Time, message string) error {
	query := `UPDATE test_runs SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, testID, types.TestStatusFailed, completedAt, message)
	if err != nil {
		return errors.NewStoreUnavailableError("fail test run", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("test run", testID)
	}

	return nil
}

// scanTestRun scans a test run from a row
func scanTestRun(row pgx.Row) (*models.TestRun, error) {
	var run models.TestRun

	err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.URL,
		&run.Device,
		&run.Region,
		&run.Status,
		&run.QueuedAt,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
		&run.PerformanceScore,
		&run.AccessibilityScore,
		&run.BestPracticesScore,
		&run.SEOScore,
		&run.FirstContentfulPaint,
		&run.LargestContentfulPaint,
		&run.CumulativeLayoutShift,
		&run.TotalBlockingTime,
		&run.TimeToInteractive,
		&run.SpeedIndex,
		&run.TotalRequests,
		&run.TotalBytes,
		&run.RawResult,
	)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
