package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbvault/internal/model"
	"dbvault/internal/secrets"
)

type verifyFixture struct {
	verifier *Verifier
	store    *model.MemoryStore
	notifier *fakeNotifier
	volDir   string
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()

	store := model.NewMemoryStore()
	notifier := &fakeNotifier{}
	volDir := t.TempDir()

	store.PutVolume(&model.Volume{
		ID:     "vol-1",
		Type:   model.VolumeTypeLocal,
		Config: map[string]string{"path": volDir},
	})

	verifier := NewVerifier(VerifierDeps{
		Snapshots: store,
		Volumes:   store,
		Storage:   testStorageFactory(),
		Notifier:  notifier,
		Logger:    quietLogger(),
		Settings:  &fakeSettings{tempRoot: t.TempDir(), lockDir: t.TempDir()},
	})

	return &verifyFixture{verifier: verifier, store: store, notifier: notifier, volDir: volDir}
}

func (fx *verifyFixture) addSnapshot(t *testing.T, id, filename string, withFile bool) {
	t.Helper()
	if withFile {
		require.NoError(t, os.WriteFile(filepath.Join(fx.volDir, filename), []byte("artifact"), 0o600))
	}
	snapshot := &model.Snapshot{
		ID:           id,
		VolumeID:     "vol-1",
		DatabaseName: "appdb",
		Compression:  model.CompressionGzip,
	}
	snapshot.Finalize(filename, 8, "deadbeef", model.CompressionGzip, fx.verifier.now())
	require.NoError(t, fx.store.SaveSnapshot(snapshot))
}

func TestVerifier_RunSweep_FlipsMissingFiles(t *testing.T) {
	fx := newVerifyFixture(t)
	fx.addSnapshot(t, "snap-present", "present.sql.gz", true)
	fx.addSnapshot(t, "snap-gone", "gone.sql.gz", false)

	require.NoError(t, fx.verifier.RunSweep(context.Background()))

	present, err := fx.store.GetSnapshot("snap-present")
	require.NoError(t, err)
	require.NotNil(t, present.FileExists)
	assert.True(t, *present.FileExists)

	gone, err := fx.store.GetSnapshot("snap-gone")
	require.NoError(t, err)
	require.NotNil(t, gone.FileExists)
	assert.False(t, *gone.FileExists)

	require.Len(t, fx.notifier.missingBatches, 1)
	require.Len(t, fx.notifier.missingBatches[0], 1)
	assert.Equal(t, "snap-gone", fx.notifier.missingBatches[0][0].ID)
}

func TestVerifier_RunSweep_DoesNotReNotify(t *testing.T) {
	fx := newVerifyFixture(t)
	fx.addSnapshot(t, "snap-gone", "gone.sql.gz", false)

	require.NoError(t, fx.verifier.RunSweep(context.Background()))
	require.NoError(t, fx.verifier.RunSweep(context.Background()))

	// Only the existing-to-missing transition notifies.
	assert.Len(t, fx.notifier.missingBatches, 1)
}

func TestVerifier_RunSweep_UnknownStateDoesNotNotify(t *testing.T) {
	fx := newVerifyFixture(t)

	// A completed snapshot whose presence was never checked: FileExists is
	// still nil. The first sweep records the absence without alerting; only
	// an existing-to-missing transition pages anyone.
	now := fx.verifier.now()
	require.NoError(t, fx.store.SaveSnapshot(&model.Snapshot{
		ID:          "snap-unchecked",
		VolumeID:    "vol-1",
		Filename:    "never-checked.sql.gz",
		Compression: model.CompressionGzip,
		CompletedAt: &now,
	}))

	require.NoError(t, fx.verifier.RunSweep(context.Background()))

	snapshot, err := fx.store.GetSnapshot("snap-unchecked")
	require.NoError(t, err)
	require.NotNil(t, snapshot.FileExists)
	assert.False(t, *snapshot.FileExists)
	assert.Empty(t, fx.notifier.missingBatches)
}

func TestVerifier_RunSweep_FileComesBack(t *testing.T) {
	fx := newVerifyFixture(t)
	fx.addSnapshot(t, "snap-1", "flappy.sql.gz", false)

	require.NoError(t, fx.verifier.RunSweep(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(fx.volDir, "flappy.sql.gz"), []byte("artifact"), 0o600))
	require.NoError(t, fx.verifier.RunSweep(context.Background()))

	snapshot, err := fx.store.GetSnapshot("snap-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot.FileExists)
	assert.True(t, *snapshot.FileExists)
}

func TestVerifier_RunSweep_TransientErrorLeavesStateAlone(t *testing.T) {
	fx := newVerifyFixture(t)

	// Unreachable SFTP volume: the backend resolves fine but every Exists
	// call fails with a connection error. The config goes through the same
	// field encryption the CLI applies, so the factory can decrypt it.
	codec, err := secrets.NewCodec("test-master-key")
	require.NoError(t, err)
	cfg, err := codec.EncryptFields("volume", map[string]string{
		"host": "127.0.0.1", "port": "1", "username": "u", "password": "p",
	})
	require.NoError(t, err)
	fx.store.PutVolume(&model.Volume{
		ID:     "vol-down",
		Type:   model.VolumeTypeSFTP,
		Config: cfg,
	})
	snapshot := &model.Snapshot{ID: "snap-1", VolumeID: "vol-down", DatabaseName: "appdb"}
	snapshot.Finalize("unreachable.sql.gz", 8, "deadbeef", model.CompressionGzip, fx.verifier.now())
	require.NoError(t, fx.store.SaveSnapshot(snapshot))
	before, err := fx.store.GetSnapshot("snap-1")
	require.NoError(t, err)

	sweepErr := fx.verifier.RunSweep(context.Background())
	require.Error(t, sweepErr)

	after, err := fx.store.GetSnapshot("snap-1")
	require.NoError(t, err)
	require.NotNil(t, after.FileExists)
	assert.True(t, *after.FileExists)
	assert.True(t, after.FileVerifiedAt.After(*before.FileVerifiedAt) || after.FileVerifiedAt.Equal(*before.FileVerifiedAt))
	assert.Empty(t, fx.notifier.missingBatches)
}

func TestVerifier_VerifyOne(t *testing.T) {
	fx := newVerifyFixture(t)
	fx.addSnapshot(t, "snap-gone", "gone.sql.gz", false)

	require.NoError(t, fx.verifier.VerifyOne(context.Background(), "snap-gone"))

	snapshot, err := fx.store.GetSnapshot("snap-gone")
	require.NoError(t, err)
	require.NotNil(t, snapshot.FileExists)
	assert.False(t, *snapshot.FileExists)
	require.Len(t, fx.notifier.missingBatches, 1)
}

func TestSnapshotDeleter_RemovesFileAndRecord(t *testing.T) {
	fx := newVerifyFixture(t)
	fx.addSnapshot(t, "snap-1", "doomed.sql.gz", true)

	deleter := NewSnapshotDeleter(fx.store, fx.store, testStorageFactory(), quietLogger())
	require.NoError(t, deleter.Delete(context.Background(), "snap-1"))

	assert.NoFileExists(t, filepath.Join(fx.volDir, "doomed.sql.gz"))
	_, err := fx.store.GetSnapshot("snap-1")
	assert.Error(t, err)
}

func TestSnapshotDeleter_PlaceholderWithoutFile(t *testing.T) {
	fx := newVerifyFixture(t)
	require.NoError(t, fx.store.SaveSnapshot(&model.Snapshot{ID: "snap-1", VolumeID: "vol-1"}))

	deleter := NewSnapshotDeleter(fx.store, fx.store, testStorageFactory(), quietLogger())
	require.NoError(t, deleter.Delete(context.Background(), "snap-1"))

	_, err := fx.store.GetSnapshot("snap-1")
	assert.Error(t, err)
}
