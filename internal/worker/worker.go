// Package worker runs the poll loop that drains the job queue. Any number of
// worker processes may run concurrently; the store's atomic claim keeps them
// from executing the same job twice.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/queue"
)

// Executor executes one claimed job
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// Worker polls the queue for pending jobs and dispatches them to the
// executor with bounded concurrency
type Worker struct {
	queue        *queue.Queue
	executor     Executor
	logger       *logging.Logger
	pollInterval time.Duration
	lease        time.Duration
	batchSize    int
	sem          chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewWorker creates a new worker. Non-positive pollInterval, batchSize, or
// concurrency fall back to sane defaults; a non-positive lease disables the
// stale-claim sweep.
func NewWorker(q *queue.Queue, executor Executor, logger *logging.Logger, pollInterval, lease time.Duration, batchSize, concurrency int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Worker{
		queue:        q,
		executor:     executor,
		logger:       logger.WithField("component", "worker"),
		pollInterval: pollInterval,
		lease:        lease,
		batchSize:    batchSize,
		sem:          make(chan struct{}, concurrency),
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the poll loop until the context is cancelled or Stop is called.
// Blocks; run it in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	w.logger.WithField("poll_interval", w.pollInterval.String()).Info("Worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	// Store outages back the poll off without touching any job's attempts.
	backoff := w.pollInterval

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			w.logger.Info("Worker stopped")
			return
		case <-w.stopped:
			wg.Wait()
			w.logger.Info("Worker stopped")
			return
		case <-ticker.C:
			w.releaseStale(ctx)

			jobs, err := w.queue.GetPendingJobs(ctx, w.batchSize)
			if err != nil {
				if errors.IsStoreUnavailable(err) {
					backoff = minDuration(backoff*2, 30*time.Second)
					w.logger.WithError(err).WithField("backoff", backoff.String()).Warn("Store unavailable, backing off poll")
					ticker.Reset(backoff)
					continue
				}
				w.logger.WithError(err).Error("Failed to poll pending jobs")
				continue
			}

			if backoff != w.pollInterval {
				backoff = w.pollInterval
				ticker.Reset(w.pollInterval)
			}

			for _, job := range jobs {
				w.dispatch(ctx, &wg, job)
			}
		}
	}
}

// releaseStale returns abandoned claims to the queue before each poll
func (w *Worker) releaseStale(ctx context.Context) {
	if w.lease <= 0 {
		return
	}

	released, err := w.queue.ReleaseStale(ctx, w.lease)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to release stale job claims")
		return
	}
	if released > 0 {
		w.logger.WithField("released", released).Warn("Released stale job claims")
	}
}

// dispatch runs one job on the bounded pool
func (w *Worker) dispatch(ctx context.Context, wg *sync.WaitGroup, job *models.Job) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	wg.Add(1)
	go func(jobID string) {
		defer wg.Done()
		defer func() { <-w.sem }()

		if err := w.executor.Execute(ctx, jobID); err != nil {
			w.logger.WithError(err).WithField("job_id", jobID).Error("Job execution failed")
		}
	}(job.ID)
}

// Stop signals the poll loop to exit and waits for in-flight jobs to finish
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})
	<-w.done
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
