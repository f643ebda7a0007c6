package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbvault/internal/errors"
	"dbvault/internal/logging"
	"dbvault/internal/model"
)

type fakeSettings struct{ attempts int }

func (s *fakeSettings) TempRoot() string              { return "/tmp" }
func (s *fakeSettings) MasterKey() string             { return "k" }
func (s *fakeSettings) LockDir() string               { return "/tmp" }
func (s *fakeSettings) BackupTimeout() time.Duration  { return time.Minute }
func (s *fakeSettings) RestoreTimeout() time.Duration { return time.Minute }
func (s *fakeSettings) VerifyTimeout() time.Duration  { return time.Minute }
func (s *fakeSettings) ConnectTimeout() time.Duration { return time.Second }
func (s *fakeSettings) BackupAttempts() int           { return s.attempts }
func (s *fakeSettings) RetryDelay() time.Duration     { return time.Millisecond }
func (s *fakeSettings) LogLevel() string              { return "quiet" }
func (s *fakeSettings) LogFormat() string             { return "text" }

func quietLogger() *logging.Logger {
	logger, _ := logging.NewLogger(logging.Config{Level: logging.LogLevelQuiet, Output: io.Discard})
	return logger
}

type recorder struct {
	mu       sync.Mutex
	backups  []string
	restores []string
	attempts int
	err      error
	errOnce  bool
}

func (r *recorder) backup(_ context.Context, jobID string, attempt, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backups = append(r.backups, jobID)
	r.attempts = attempt
	if r.err != nil {
		if r.errOnce && attempt > 1 {
			return nil
		}
		return r.err
	}
	return nil
}

func (r *recorder) restore(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restores = append(r.restores, jobID)
	return r.err
}

func (r *recorder) backupCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backups)
}

func (r *recorder) restoreCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.restores)
}

func runQueue(t *testing.T, rec *recorder, attempts int, work ...Work) (failed []string) {
	t.Helper()

	var mu sync.Mutex
	q := New(2, Handlers{Backup: rec.backup, Restore: rec.restore}, &fakeSettings{attempts: attempts}, quietLogger())
	q.OnFailure = func(jobID string, _ error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, jobID)
	}

	q.Start(context.Background())
	for _, w := range work {
		q.Enqueue(w)
	}
	q.Stop()
	return failed
}

func TestQueue_BackupRunsOnce(t *testing.T) {
	rec := &recorder{}

	failed := runQueue(t, rec, 2, Work{Kind: model.JobKindBackup, JobID: "job-1"})

	assert.Equal(t, 1, rec.backupCalls())
	assert.Empty(t, failed)
}

func TestQueue_BackupRetriesRetryableErrors(t *testing.T) {
	rec := &recorder{err: errors.NewConnectionError("db unreachable", nil)}

	failed := runQueue(t, rec, 3, Work{Kind: model.JobKindBackup, JobID: "job-1"})

	assert.Equal(t, 3, rec.backupCalls())
	assert.Equal(t, []string{"job-1"}, failed)
}

func TestQueue_BackupRecoversOnRetry(t *testing.T) {
	rec := &recorder{err: errors.NewConnectionError("db unreachable", nil), errOnce: true}

	failed := runQueue(t, rec, 2, Work{Kind: model.JobKindBackup, JobID: "job-1"})

	assert.Equal(t, 2, rec.backupCalls())
	assert.Empty(t, failed)
}

func TestQueue_BackupPermanentErrorSkipsRetries(t *testing.T) {
	rec := &recorder{err: errors.NewValidationError("bad server descriptor", nil)}

	failed := runQueue(t, rec, 3, Work{Kind: model.JobKindBackup, JobID: "job-1"})

	assert.Equal(t, 1, rec.backupCalls())
	assert.Equal(t, []string{"job-1"}, failed)
}

func TestQueue_RestoreNeverRetries(t *testing.T) {
	rec := &recorder{err: errors.NewConnectionError("db unreachable", nil)}

	failed := runQueue(t, rec, 3, Work{Kind: model.JobKindRestore, JobID: "job-1"})

	assert.Equal(t, 1, rec.restoreCalls())
	assert.Equal(t, []string{"job-1"}, failed)
}

func TestQueue_DispatchesConcurrently(t *testing.T) {
	rec := &recorder{}

	work := make([]Work, 10)
	for i := range work {
		work[i] = Work{Kind: model.JobKindBackup, JobID: "job"}
	}
	failed := runQueue(t, rec, 2, work...)

	assert.Equal(t, 10, rec.backupCalls())
	assert.Empty(t, failed)
}

func TestQueue_StopIsIdempotent(t *testing.T) {
	q := New(1, Handlers{
		Backup:  func(context.Context, string, int, int) error { return nil },
		Restore: func(context.Context, string) error { return nil },
	}, &fakeSettings{attempts: 1}, quietLogger())

	q.Start(context.Background())
	require.NotPanics(t, func() {
		q.Stop()
		q.Stop()
	})
}
