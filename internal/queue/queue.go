// Package queue provides the in-process worker pool that drives the
// orchestrators. Backup jobs retry with constant backoff up to the
// configured attempt count; restore jobs run exactly once.
package queue

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"dbvault/internal/config"
	"dbvault/internal/errors"
	"dbvault/internal/logging"
	"dbvault/internal/model"
)

// Work is one unit of dispatchable work
type Work struct {
	Kind  model.JobKind
	JobID string
}

// Handlers binds job kinds to orchestrator entry points
type Handlers struct {
	Backup  func(ctx context.Context, jobID string, attempt, maxAttempts int) error
	Restore func(ctx context.Context, jobID string) error
}

// Queue is a fixed-size worker pool over a buffered work channel
type Queue struct {
	handlers Handlers
	settings config.Settings
	logger   *logging.Logger
	workers  int

	// OnFailure runs after a job exhausts its attempts. Optional.
	OnFailure func(jobID string, err error)

	work chan Work
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a queue with the given number of workers
func New(workers int, handlers Handlers, settings config.Settings, logger *logging.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		handlers: handlers,
		settings: settings,
		logger:   logger,
		workers:  workers,
		work:     make(chan Work, workers*4),
	}
}

// Start launches the workers. They drain the channel until Stop is called
// or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case w, ok := <-q.work:
					if !ok {
						return
					}
					q.dispatch(ctx, w)
				}
			}
		}()
	}
}

// Enqueue submits a unit of work, blocking when the buffer is full
func (q *Queue) Enqueue(w Work) {
	q.work <- w
}

// Stop closes the queue and waits for in-flight work to finish
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.work) })
	q.wg.Wait()
}

func (q *Queue) dispatch(ctx context.Context, w Work) {
	var err error
	switch w.Kind {
	case model.JobKindBackup:
		err = q.runBackup(ctx, w.JobID)
	case model.JobKindRestore:
		err = q.handlers.Restore(ctx, w.JobID)
	default:
		q.logger.Errorf("unknown job kind %q for job %s", w.Kind, w.JobID)
		return
	}

	if err != nil {
		q.logger.WithFields(map[string]interface{}{
			"job_id": w.JobID,
			"kind":   string(w.Kind),
			"error":  err.Error(),
		}).Error("Job failed terminally")
		if q.OnFailure != nil {
			q.OnFailure(w.JobID, err)
		}
	}
}

// runBackup retries the backup handler with constant backoff. Permanent
// errors (configuration, validation) skip the remaining attempts.
func (q *Queue) runBackup(ctx context.Context, jobID string) error {
	maxAttempts := q.settings.BackupAttempts()
	attempt := 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(q.settings.RetryDelay()),
			uint64(maxAttempts-1),
		),
		ctx,
	)

	return backoff.Retry(func() error {
		attempt++
		err := q.handlers.Backup(ctx, jobID, attempt, maxAttempts)
		if err != nil && errors.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
