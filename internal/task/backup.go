package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

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

// artifactTimestampLayout is the compact ISO 8601 form used in artifact names
const artifactTimestampLayout = "20060102T150405Z"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// BackupDeps carries the collaborators of the backup orchestrator
type BackupDeps struct {
	Jobs        model.JobStore
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

	// CompressOptions applies to every compressor the task builds; the
	// compression kind itself comes from the snapshot placeholder.
	CompressOptions compress.Options
}

// BackupTask runs the backup pipeline for one job: dump, compress,
// checksum, upload, finalize.
type BackupTask struct {
	deps BackupDeps
	now  func() time.Time
}

// NewBackupTask creates a backup orchestrator
func NewBackupTask(deps BackupDeps) *BackupTask {
	return &BackupTask{deps: deps, now: time.Now}
}

// Run executes the backup job. attempt and maxAttempts come from the queue
// retry policy; the failure notification fires only on the final attempt so
// operators see one alert per job, not one per retry.
//
// Servers flagged AllDatabases expand into one snapshot per enumerated
// database. Each database backs up independently; a failure in one does not
// abort the others, and the job fails if any database failed.
func (t *BackupTask) Run(ctx context.Context, jobID string, attempt, maxAttempts int) error {
	job, err := t.deps.Jobs.GetJob(jobID)
	if err != nil {
		return err
	}
	snapshot, err := t.deps.Snapshots.GetSnapshot(job.SnapshotID)
	if err != nil {
		return err
	}
	server, err := t.deps.Servers.GetServer(snapshot.ServerID)
	if err != nil {
		return err
	}
	volume, err := t.deps.Volumes.GetVolume(snapshot.VolumeID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.deps.Settings.BackupTimeout())
	defer cancel()

	job.MarkRunning(t.now())
	if err := t.deps.Jobs.SaveJob(job); err != nil {
		return err
	}
	t.deps.Logger.LogJobTransition(job.ID, string(job.Kind), string(model.JobStatusQueued), string(model.JobStatusRunning))

	runErr := t.run(ctx, snapshot, server, volume)
	if runErr != nil {
		job.MarkFailed(t.now(), errors.UserMessage(runErr))
		if err := t.deps.Jobs.SaveJob(job); err != nil {
			t.deps.Logger.Errorf("failed to persist job failure: %v", err)
		}
		if attempt >= maxAttempts {
			notify(t.deps.Logger, func() { t.deps.Notifier.BackupFailed(snapshot, runErr) })
		}
		return runErr
	}

	job.MarkCompleted(t.now())
	if err := t.deps.Jobs.SaveJob(job); err != nil {
		return err
	}
	t.deps.Logger.LogJobTransition(job.ID, string(job.Kind), string(model.JobStatusRunning), string(model.JobStatusCompleted))
	return nil
}

func (t *BackupTask) run(ctx context.Context, snapshot *model.Snapshot, server *model.DatabaseServer, volume *model.Volume) error {
	backend, err := t.deps.Storage.ForVolume(ctx, volume)
	if err != nil {
		return err
	}
	eng, err := t.deps.Engines.ForType(server.Type)
	if err != nil {
		return err
	}

	dir, err := workdir.Acquire(t.deps.Settings.TempRoot(), "backup")
	if err != nil {
		return err
	}
	defer dir.Cleanup()

	if !server.AllDatabases {
		return t.backupOne(ctx, snapshot, server, eng, backend, dir)
	}

	databases, err := eng.ListDatabases(ctx, server)
	if err != nil {
		return err
	}
	if len(databases) == 0 {
		return errors.NewValidationError("server has no databases to back up", nil).
			WithContext("server", server.Name)
	}

	var result *multierror.Error
	for i, database := range databases {
		target := snapshot
		if i > 0 {
			target = t.expandSnapshot(snapshot, database)
		}
		target.DatabaseName = database
		if err := t.deps.Snapshots.SaveSnapshot(target); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := t.backupOne(ctx, target, server, eng, backend, dir); err != nil {
			result = multierror.Append(result, fmt.Errorf("database %s: %w", database, err))
		}
	}
	return result.ErrorOrNil()
}

// expandSnapshot clones the placeholder for an additional database of an
// all-databases server, sharing the job and volume references.
func (t *BackupTask) expandSnapshot(placeholder *model.Snapshot, database string) *model.Snapshot {
	return &model.Snapshot{
		ID:           uuid.NewString(),
		ServerID:     placeholder.ServerID,
		VolumeID:     placeholder.VolumeID,
		JobID:        placeholder.JobID,
		DatabaseName: database,
		DatabaseType: placeholder.DatabaseType,
		DatabaseHost: placeholder.DatabaseHost,
		Trigger:      placeholder.Trigger,
		Compression:  placeholder.Compression,
	}
}

func (t *BackupTask) backupOne(ctx context.Context, snapshot *model.Snapshot, server *model.DatabaseServer, eng engine.Engine, backend storage.Backend, dir *workdir.Dir) error {
	database := snapshot.DatabaseName
	if database == "" {
		database = server.Name
	}

	kind := snapshot.Compression
	if kind == "" {
		kind = model.CompressionGzip
	}
	compressor, err := t.deps.Compressors.For(kind, t.deps.CompressOptions)
	if err != nil {
		return err
	}

	dumpPath := dir.Join(fmt.Sprintf("%s.%s", sanitizeName(database), eng.DumpExtension()))
	if err := t.runDump(ctx, eng.DumpCommand(server, database, dumpPath)); err != nil {
		return err
	}

	artifactPath, err := compressor.Compress(ctx, dumpPath)
	if err != nil {
		return err
	}

	checksum, size, err := checksumFile(artifactPath)
	if err != nil {
		return err
	}

	filename := artifactName(database, snapshot.ID, eng.DumpExtension(), compressor.Extension(), t.now())

	f, err := os.Open(artifactPath)
	if err != nil {
		return errors.NewExecutionError("failed to open artifact for upload", err).
			WithContext("path", artifactPath)
	}
	defer f.Close()

	uploadStart := time.Now()
	err = backend.Write(ctx, filename, f)
	t.deps.Logger.LogTransfer("upload", backend.Name(), filename, size, time.Since(uploadStart), err)
	if err != nil {
		return err
	}

	snapshot.Finalize(filename, size, checksum, kind, t.now())
	return t.deps.Snapshots.SaveSnapshot(snapshot)
}

func (t *BackupTask) runDump(ctx context.Context, commandLine string) error {
	start := time.Now()
	_, err := t.deps.Runner.Run(ctx, commandLine)
	t.deps.Logger.LogCommandExecution(shell.Redact(commandLine), time.Since(start), err)
	return err
}

// artifactName builds the storage key:
// {sanitized-database}-{ISO8601-timestamp}-{id-prefix}.{dump-ext}.{compress-ext}
// The snapshot id prefix keeps keys distinct when concurrent jobs back up
// the same database within the same second.
func artifactName(database, snapshotID, dumpExt, compressExt string, now time.Time) string {
	idPrefix := snapshotID
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}
	return fmt.Sprintf("%s-%s-%s.%s.%s",
		sanitizeName(database),
		now.UTC().Format(artifactTimestampLayout),
		idPrefix,
		dumpExt,
		compressExt,
	)
}

// sanitizeName strips characters unsafe in filenames and storage keys
func sanitizeName(name string) string {
	sanitized := unsafeNameChars.ReplaceAllString(name, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		return "database"
	}
	return sanitized
}

// checksumFile returns the hex SHA-256 digest and size of a file
func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.NewExecutionError("failed to open artifact for checksum", err).
			WithContext("path", path)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errors.NewExecutionError("failed to checksum artifact", err).
			WithContext("path", path)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
