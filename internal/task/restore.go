package task

import (
	"context"
	"io"
	"os"
	"regexp"
	"time"

	"dbvault/internal/compress"
	"dbvault/internal/config"
	"dbvault/internal/engine"
	"dbvault/internal/errors"
	"dbvault/internal/logging"
	"dbvault/internal/model"
	"dbvault/internal/shell"
	"dbvault/internal/storage"
	"dbvault/internal/workdir"
)

// destinationNamePattern is the only shape of destination database name the
// restore pipeline accepts. Everything it rejects would otherwise end up
// interpolated into a shell command line.
var destinationNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// RestoreDeps carries the collaborators of the restore orchestrator
type RestoreDeps struct {
	Jobs        model.JobStore
	Restores    model.RestoreStore
	Snapshots   model.SnapshotStore
	Servers     model.ServerStore
	Volumes     model.VolumeStore
	Engines     *engine.Registry
	Storage     *storage.Factory
	Compressors *compress.Factory
	Runner      engine.CommandRunner
	Notifier    Notifier
	Logger      *logging.Logger
	Settings    config.Settings

	CompressOptions compress.Options
}

// RestoreTask replays a snapshot into a target server: download,
// decompress, restore. A failed restore is never retried automatically; the
// operator creates a new Restore record to try again.
type RestoreTask struct {
	deps RestoreDeps
	now  func() time.Time
}

// NewRestoreTask creates a restore orchestrator
func NewRestoreTask(deps RestoreDeps) *RestoreTask {
	return &RestoreTask{deps: deps, now: time.Now}
}

// Run executes the restore job
func (t *RestoreTask) Run(ctx context.Context, jobID string) error {
	job, err := t.deps.Jobs.GetJob(jobID)
	if err != nil {
		return err
	}
	restore, err := t.deps.Restores.GetRestore(job.RestoreID)
	if err != nil {
		return err
	}
	snapshot, err := t.deps.Snapshots.GetSnapshot(restore.SnapshotID)
	if err != nil {
		return err
	}
	server, err := t.deps.Servers.GetServer(restore.TargetServerID)
	if err != nil {
		return err
	}
	volume, err := t.deps.Volumes.GetVolume(snapshot.VolumeID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.deps.Settings.RestoreTimeout())
	defer cancel()

	job.MarkRunning(t.now())
	if err := t.deps.Jobs.SaveJob(job); err != nil {
		return err
	}
	t.deps.Logger.LogJobTransition(job.ID, string(job.Kind), string(model.JobStatusQueued), string(model.JobStatusRunning))

	runErr := t.run(ctx, restore, snapshot, server, volume)
	if runErr != nil {
		job.MarkFailed(t.now(), errors.UserMessage(runErr))
		if err := t.deps.Jobs.SaveJob(job); err != nil {
			t.deps.Logger.Errorf("failed to persist job failure: %v", err)
		}
		notify(t.deps.Logger, func() { t.deps.Notifier.RestoreFailed(restore, runErr) })
		return runErr
	}

	job.MarkCompleted(t.now())
	if err := t.deps.Jobs.SaveJob(job); err != nil {
		return err
	}
	t.deps.Logger.LogJobTransition(job.ID, string(job.Kind), string(model.JobStatusRunning), string(model.JobStatusCompleted))
	return nil
}

func (t *RestoreTask) run(ctx context.Context, restore *model.Restore, snapshot *model.Snapshot, server *model.DatabaseServer, volume *model.Volume) error {
	// Validated before any command is built or any byte is downloaded.
	if !destinationNamePattern.MatchString(restore.DatabaseName) {
		return errors.NewValidationError("destination database name contains illegal characters", nil).
			WithContext("database", restore.DatabaseName)
	}
	if snapshot.Filename == "" {
		return errors.NewValidationError("snapshot has no stored artifact", nil).
			WithContext("snapshot_id", snapshot.ID)
	}

	backend, err := t.deps.Storage.ForVolume(ctx, volume)
	if err != nil {
		return err
	}
	eng, err := t.deps.Engines.ForType(server.Type)
	if err != nil {
		return err
	}
	compressor, err := t.deps.Compressors.For(snapshot.Compression, t.deps.CompressOptions)
	if err != nil {
		return err
	}

	dir, err := workdir.Acquire(t.deps.Settings.TempRoot(), "restore")
	if err != nil {
		return err
	}
	defer dir.Cleanup()

	artifactPath := dir.Join(snapshot.Filename)
	if err := t.download(ctx, backend, snapshot.Filename, artifactPath); err != nil {
		return err
	}

	dumpPath, err := compressor.Decompress(ctx, artifactPath)
	if err != nil {
		return err
	}

	commandLine := eng.RestoreCommand(server, restore.DatabaseName, dumpPath)
	start := time.Now()
	_, err = t.deps.Runner.Run(ctx, commandLine)
	t.deps.Logger.LogCommandExecution(shell.Redact(commandLine), time.Since(start), err)
	return err
}

func (t *RestoreTask) download(ctx context.Context, backend storage.Backend, key, localPath string) error {
	start := time.Now()

	stream, err := backend.ReadStream(ctx, key)
	if err != nil {
		t.deps.Logger.LogTransfer("download", backend.Name(), key, 0, time.Since(start), err)
		return err
	}
	defer stream.Close()

	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.NewExecutionError("failed to create local artifact file", err).
			WithContext("path", localPath)
	}

	size, err := io.Copy(f, stream)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		err = errors.NewConnectionError("failed to download artifact", err).
			WithContext("key", key)
	}
	t.deps.Logger.LogTransfer("download", backend.Name(), key, size, time.Since(start), err)
	return err
}
