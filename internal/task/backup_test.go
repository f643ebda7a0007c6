package task

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbvault/internal/engine"
	"dbvault/internal/errors"
	"dbvault/internal/model"
)

type backupFixture struct {
	task     *BackupTask
	store    *model.MemoryStore
	runner   *fakeRunner
	notifier *fakeNotifier
	volDir   string
}

func newBackupFixture(t *testing.T, runner *fakeRunner) *backupFixture {
	t.Helper()

	store := model.NewMemoryStore()
	notifier := &fakeNotifier{}
	volDir := t.TempDir()

	store.PutServer(&model.DatabaseServer{
		ID:       "srv-1",
		Name:     "primary",
		Type:     model.DatabaseTypeMySQL,
		Host:     "db.internal",
		Port:     3306,
		Username: "backup",
		Password: "pw",
	})
	store.PutVolume(&model.Volume{
		ID:     "vol-1",
		Name:   "local",
		Type:   model.VolumeTypeLocal,
		Config: map[string]string{"path": volDir},
	})
	require.NoError(t, store.SaveSnapshot(&model.Snapshot{
		ID:           "snap-1",
		ServerID:     "srv-1",
		VolumeID:     "vol-1",
		JobID:        "job-1",
		DatabaseName: "appdb",
		DatabaseType: model.DatabaseTypeMySQL,
		DatabaseHost: "db.internal",
		Trigger:      model.TriggerManual,
		Compression:  model.CompressionGzip,
	}))
	require.NoError(t, store.SaveJob(&model.BackupJob{
		ID:         "job-1",
		Kind:       model.JobKindBackup,
		Status:     model.JobStatusQueued,
		SnapshotID: "snap-1",
	}))

	task := NewBackupTask(BackupDeps{
		Jobs:        store,
		Snapshots:   store,
		Servers:     store,
		Volumes:     store,
		Engines:     engine.NewRegistry(engine.RegistryDeps{Executor: runner}),
		Storage:     testStorageFactory(),
		Compressors: testCompressFactory(),
		Runner:      runner,
		Notifier:    notifier,
		Logger:      quietLogger(),
		Settings:    &fakeSettings{tempRoot: t.TempDir(), lockDir: t.TempDir()},
	})

	return &backupFixture{task: task, store: store, runner: runner, notifier: notifier, volDir: volDir}
}

func TestBackupTask_Run_FinalizesSnapshot(t *testing.T) {
	fx := newBackupFixture(t, &fakeRunner{dumpData: "-- dump of appdb\nCREATE TABLE t (id INT);\n"})

	require.NoError(t, fx.task.Run(context.Background(), "job-1", 1, 2))

	job, err := fx.store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	snapshot, err := fx.store.GetSnapshot("snap-1")
	require.NoError(t, err)
	assert.Regexp(t, `^appdb-\d{8}T\d{6}Z-[0-9a-zA-Z-]+\.sql\.gz$`, snapshot.Filename)
	assert.Greater(t, snapshot.FileSize, int64(0))
	assert.Len(t, snapshot.Checksum, 64)
	assert.Equal(t, model.CompressionGzip, snapshot.Compression)
	require.NotNil(t, snapshot.FileExists)
	assert.True(t, *snapshot.FileExists)

	// Artifact lands in the volume under the snapshot's key.
	assert.FileExists(t, filepath.Join(fx.volDir, snapshot.Filename))
}

func TestBackupTask_Run_DumpCommandCarriesCredentials(t *testing.T) {
	fx := newBackupFixture(t, &fakeRunner{dumpData: "-- dump\n"})

	require.NoError(t, fx.task.Run(context.Background(), "job-1", 1, 2))

	command := fx.runner.lastCommand()
	assert.Contains(t, command, "mysqldump")
	assert.Contains(t, command, "-h 'db.internal'")
	assert.Contains(t, command, "'appdb'")
}

func TestBackupTask_Run_FailureMarksJobFailed(t *testing.T) {
	fx := newBackupFixture(t, &fakeRunner{err: errors.NewExecutionError("dump failed", nil)})

	err := fx.task.Run(context.Background(), "job-1", 1, 2)
	require.Error(t, err)

	job, jobErr := fx.store.GetJob("job-1")
	require.NoError(t, jobErr)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)

	// Snapshot stays an unfinalized placeholder.
	snapshot, snapErr := fx.store.GetSnapshot("snap-1")
	require.NoError(t, snapErr)
	assert.Empty(t, snapshot.Filename)
	assert.Nil(t, snapshot.CompletedAt)
}

func TestBackupTask_Run_NotifiesOnlyOnFinalAttempt(t *testing.T) {
	fx := newBackupFixture(t, &fakeRunner{err: errors.NewExecutionError("dump failed", nil)})

	require.Error(t, fx.task.Run(context.Background(), "job-1", 1, 2))
	assert.Zero(t, fx.notifier.backupFailed)

	require.Error(t, fx.task.Run(context.Background(), "job-1", 2, 2))
	assert.Equal(t, 1, fx.notifier.backupFailed)
}

func TestBackupTask_Run_UnknownCompressionKind(t *testing.T) {
	fx := newBackupFixture(t, &fakeRunner{dumpData: "-- dump\n"})

	snapshot, err := fx.store.GetSnapshot("snap-1")
	require.NoError(t, err)
	snapshot.Compression = model.CompressionType("brotli")
	require.NoError(t, fx.store.SaveSnapshot(snapshot))

	err = fx.task.Run(context.Background(), "job-1", 2, 2)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))

	job, jobErr := fx.store.GetJob("job-1")
	require.NoError(t, jobErr)
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestBackupTask_ConcurrentJobsUseDistinctKeys(t *testing.T) {
	fx := newBackupFixture(t, &fakeRunner{dumpData: "-- dump\n"})

	require.NoError(t, fx.store.SaveSnapshot(&model.Snapshot{
		ID:           "snap-2",
		ServerID:     "srv-1",
		VolumeID:     "vol-1",
		JobID:        "job-2",
		DatabaseName: "appdb",
		DatabaseType: model.DatabaseTypeMySQL,
		Trigger:      model.TriggerManual,
		Compression:  model.CompressionGzip,
	}))
	require.NoError(t, fx.store.SaveJob(&model.BackupJob{
		ID:         "job-2",
		Kind:       model.JobKindBackup,
		Status:     model.JobStatusQueued,
		SnapshotID: "snap-2",
	}))

	done := make(chan error, 2)
	go func() { done <- fx.task.Run(context.Background(), "job-1", 1, 2) }()
	go func() { done <- fx.task.Run(context.Background(), "job-2", 1, 2) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	first, err := fx.store.GetSnapshot("snap-1")
	require.NoError(t, err)
	second, err := fx.store.GetSnapshot("snap-2")
	require.NoError(t, err)

	assert.NotEqual(t, first.Filename, second.Filename)
	assert.FileExists(t, filepath.Join(fx.volDir, first.Filename))
	assert.FileExists(t, filepath.Join(fx.volDir, second.Filename))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain name", "appdb", "appdb"},
		{"spaces and dots", "my app.db", "my-app-db"},
		{"shell metacharacters", "a;b&&c", "a-b-c"},
		{"leading and trailing junk", "..prod..", "prod"},
		{"only junk", "../..", "database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestArtifactName(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 30, 45, 0, time.UTC)

	name := artifactName("appdb", "0f8fad5b-d9cb-469f-a165-70867728950e", "sql", "zst", now)

	assert.Equal(t, "appdb-20260901T123045Z-0f8fad5b.sql.zst", name)
}

func TestExpandSnapshot(t *testing.T) {
	task := NewBackupTask(BackupDeps{})
	placeholder := &model.Snapshot{
		ID:           "snap-1",
		ServerID:     "srv-1",
		VolumeID:     "vol-1",
		JobID:        "job-1",
		DatabaseType: model.DatabaseTypePostgres,
		DatabaseHost: "pg.internal",
		Trigger:      model.TriggerScheduled,
		Compression:  model.CompressionZstd,
	}

	expanded := task.expandSnapshot(placeholder, "orders")

	assert.NotEqual(t, placeholder.ID, expanded.ID)
	assert.Equal(t, "orders", expanded.DatabaseName)
	assert.Equal(t, placeholder.JobID, expanded.JobID)
	assert.Equal(t, placeholder.VolumeID, expanded.VolumeID)
	assert.Equal(t, placeholder.Compression, expanded.Compression)
}

func TestNotify_SwallowsPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		notify(quietLogger(), func() { panic("notifier exploded") })
	})
}
