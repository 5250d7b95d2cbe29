// Package orchestrator owns the test run lifecycle: submission validation,
// job execution against the audit provider, result mapping, and the retry
// decision on failure.
package orchestrator

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/adapter"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/queue"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/google/uuid"
)

// TestRunStore is the persistence contract for test runs
type TestRunStore interface {
	Create(ctx context.Context, run *models.TestRun) error
	GetByID(ctx context.Context, testID string) (*models.TestRun, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.TestRun, error)
	MarkRunning(ctx context.Context, testID string, startedAt time.Time) error
	Requeue(ctx context.Context, testID string) error
	MarkCompleted(ctx context.Context, testID string, completedAt time.Time, result *models.TestResult) error
	MarkFailed(ctx context.Context, testID string, completedAt time.Time, message string) error
}

// ResultCache fronts the test run store for read traffic. All methods are
// best effort; failures are logged, never propagated.
type ResultCache interface {
	GetTestRun(ctx context.Context, testID string) (*models.TestRun, error)
	SetTestRun(ctx context.Context, run *models.TestRun) error
	InvalidateTestRun(ctx context.Context, testID string) error
}

// HistorySink receives completed test metrics for trend queries
type HistorySink interface {
	Insert(ctx context.Context, run *models.TestRun, result *models.TestResult, completedAt time.Time) error
}

// SubmitInput is the caller-provided description of a test to run
type SubmitInput struct {
	URL    string `json:"url"`
	Device string `json:"device"`
	Region string `json:"region"`
}

// Orchestrator coordinates test runs across the store, the job queue, and
// the audit provider
type Orchestrator struct {
	runs    TestRunStore
	queue   *queue.Queue
	auditor adapter.Auditor
	cache   ResultCache
	history HistorySink
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCache attaches a read projection cache
func WithCache(cache ResultCache) Option {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithHistory attaches a metrics history sink
func WithHistory(history HistorySink) Option {
	return func(o *Orchestrator) {
		o.history = history
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(runs TestRunStore, q *queue.Queue, auditor adapter.Auditor, logger *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runs:    runs,
		queue:   q,
		auditor: auditor,
		logger:  logger.WithField("component", "orchestrator"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the input, persists a queued test run, and enqueues its
// job. Validation failures return InvalidRequest before anything is written.
// The test ID is returned immediately; execution happens asynchronously.
func (o *Orchestrator) Submit(ctx context.Context, userID string, input SubmitInput) (string, error) {
	if err := validateSubmitInput(input); err != nil {
		return "", err
	}

	now := o.now()
	run := &models.TestRun{
		ID:       uuid.New().String(),
		UserID:   userID,
		URL:      input.URL,
		Device:   types.Device(input.Device),
		Region:   input.Region,
		Status:   types.TestStatusQueued,
		QueuedAt: now,
	}

	if err := o.runs.Create(ctx, run); err != nil {
		return "", err
	}

	payload := models.TestJobPayload{
		TestRunID: run.ID,
		URL:       run.URL,
		Device:    run.Device,
		Region:    run.Region,
	}
	if _, err := o.queue.Enqueue(ctx, types.JobTypePerformanceTest, payload); err != nil {
		return "", err
	}

	o.logger.WithField("test_id", run.ID).WithField("url", run.URL).Info("Test submitted")
	return run.ID, nil
}

// validateSubmitInput checks the submission before anything is persisted
func validateSubmitInput(input SubmitInput) error {
	if strings.TrimSpace(input.URL) == "" {
		return errors.NewInvalidRequestError("url", "must not be empty")
	}

	parsed, err := url.Parse(input.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errors.NewInvalidRequestError("url", "must be an absolute URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.NewInvalidRequestError("url", "scheme must be http or https")
	}

	if !types.Device(input.Device).Valid() {
		return errors.NewInvalidRequestError("device", "must be 'mobile' or 'desktop'")
	}

	if strings.TrimSpace(input.Region) == "" {
		return errors.NewInvalidRequestError("region", "must not be empty")
	}

	return nil
}

// Execute runs one claimed job end to end. Called by the worker.
//
// Losing the claim race is a silent no-op. Provider failures are classified:
// transient ones consume an attempt and requeue via the retry policy, the
// rest fail the run on the spot.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	job, err := o.queue.MarkRunning(ctx, jobID)
	if err != nil {
		if errors.IsAlreadyClaimed(err) {
			o.logger.WithField("job_id", jobID).Debug("Job claimed by another worker")
			return nil
		}
		return err
	}

	var payload models.TestJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		reason := "malformed job payload"
		o.failRun(ctx, payload.TestRunID, reason)
		return o.queue.MarkFailed(ctx, jobID, reason)
	}

	log := o.logger.WithField("job_id", jobID).WithField("test_id", payload.TestRunID)

	if err := o.runs.MarkRunning(ctx, payload.TestRunID, o.now()); err != nil {
		return err
	}

	auditResult, err := o.auditor.Audit(ctx, payload.URL, payload.Device)
	if err != nil {
		return o.handleAuditFailure(ctx, job, &payload, err, log)
	}

	result := MapAuditResult(auditResult)
	completedAt := o.now()

	if err := o.runs.MarkCompleted(ctx, payload.TestRunID, completedAt, result); err != nil {
		return err
	}
	if err := o.queue.MarkCompleted(ctx, jobID); err != nil {
		return err
	}

	o.recordHistory(ctx, &payload, result, completedAt, log)
	o.refreshProjection(ctx, payload.TestRunID, log)

	log.WithField("attempts", job.Attempts).Info("Test completed")
	return nil
}

// handleAuditFailure applies the retry policy after a provider failure
func (o *Orchestrator) handleAuditFailure(ctx context.Context, job *models.Job, payload *models.TestJobPayload, auditErr error, log *logging.Logger) error {
	catErr := errors.Categorize(auditErr)
	log.WithError(auditErr).WithField("attempts", job.Attempts).Warn("Audit failed")

	if !errors.IsRetryable(auditErr) {
		o.failRun(ctx, payload.TestRunID, catErr.Message)
		return o.queue.MarkFailed(ctx, job.ID, catErr.Message)
	}

	retried, err := o.queue.Retry(ctx, job.ID)
	if err != nil {
		return err
	}

	if retried {
		// Back to queued for the next eligible poll; queued_at stays as it was.
		if err := o.runs.Requeue(ctx, payload.TestRunID); err != nil {
			return err
		}
		log.WithField("attempts", job.Attempts).Info("Test requeued for retry")
		return nil
	}

	o.failRun(ctx, payload.TestRunID, "max retry attempts exceeded")
	log.WithField("attempts", job.Attempts).Warn("Test failed after exhausting attempts")
	return nil
}

// failRun marks a test run failed, logging rather than propagating store
// errors so the job outcome is still recorded
func (o *Orchestrator) failRun(ctx context.Context, testID, message string) {
	if testID == "" {
		return
	}
	if err := o.runs.MarkFailed(ctx, testID, o.now(), message); err != nil {
		o.logger.WithError(err).WithField("test_id", testID).Error("Failed to mark test run failed")
	}
	if o.cache != nil {
		if err := o.cache.InvalidateTestRun(ctx, testID); err != nil {
			o.logger.WithError(err).WithField("test_id", testID).Debug("Failed to invalidate cached test run")
		}
	}
}

// recordHistory appends the completed metrics to the history sink, best effort
func (o *Orchestrator) recordHistory(ctx context.Context, payload *models.TestJobPayload, result *models.TestResult, completedAt time.Time, log *logging.Logger) {
	if o.history == nil {
		return
	}

	run := &models.TestRun{
		ID:     payload.TestRunID,
		URL:    payload.URL,
		Device: payload.Device,
		Region: payload.Region,
	}
	if err := o.history.Insert(ctx, run, result, completedAt); err != nil {
		log.WithError(err).Warn("Failed to record metrics history")
	}
}

// refreshProjection replaces the cached projection with the stored terminal
// record, best effort
func (o *Orchestrator) refreshProjection(ctx context.Context, testID string, log *logging.Logger) {
	if o.cache == nil {
		return
	}

	run, err := o.runs.GetByID(ctx, testID)
	if err != nil {
		log.WithError(err).Debug("Failed to load test run for cache refresh")
		return
	}
	if err := o.cache.SetTestRun(ctx, run); err != nil {
		log.WithError(err).Debug("Failed to cache test run")
	}
}

// GetStatus returns the current projection of a test run. Terminal records
// are served from the cache when present.
func (o *Orchestrator) GetStatus(ctx context.Context, testID string) (*models.TestRun, error) {
	if o.cache != nil {
		if cached, err := o.cache.GetTestRun(ctx, testID); err == nil && cached != nil {
			return cached, nil
		}
	}

	run, err := o.runs.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}

	if o.cache != nil && run.Status.Terminal() {
		if err := o.cache.SetTestRun(ctx, run); err != nil {
			o.logger.WithError(err).WithField("test_id", testID).Debug("Failed to cache test run")
		}
	}

	return run, nil
}

// ListTests returns the caller's most recent test runs
func (o *Orchestrator) ListTests(ctx context.Context, userID string, limit int) ([]*models.TestRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return o.runs.ListByUser(ctx, userID, limit)
}

// MapAuditResult maps a provider audit result into stored test result fields.
// Category scores are 0-1 ratios from the provider and become 0-100 integers;
// metric values pass through unchanged.
func MapAuditResult(audit *adapter.AuditResult) *models.TestResult {
	return &models.TestResult{
		PerformanceScore:       mapScore(audit.PerformanceScore),
		AccessibilityScore:     mapScore(audit.AccessibilityScore),
		BestPracticesScore:     mapScore(audit.BestPracticesScore),
		SEOScore:               mapScore(audit.SEOScore),
		FirstContentfulPaint:   audit.FirstContentfulPaint,
		LargestContentfulPaint: audit.LargestContentfulPaint,
		CumulativeLayoutShift:  audit.CumulativeLayoutShift,
		TotalBlockingTime:      audit.TotalBlockingTime,
		TimeToInteractive:      audit.TimeToInteractive,
		SpeedIndex:             audit.SpeedIndex,
		TotalRequests:          audit.TotalRequests,
		TotalBytes:             audit.TotalBytes,
		RawResult:              audit.Raw,
	}
}

// mapScore converts a 0-1 ratio to a 0-100 integer, clamped
func mapScore(ratio float64) int {
	score := int(math.Round(ratio * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
