package task

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"

	"dbvault/internal/config"
	"dbvault/internal/errors"
	"dbvault/internal/logging"
	"dbvault/internal/model"
	"dbvault/internal/storage"
)

const verifyLockFile = "verify.lock"

// VerifierDeps carries the collaborators of the integrity verifier
type VerifierDeps struct {
	Snapshots model.SnapshotStore
	Volumes   model.VolumeStore
	Storage   *storage.Factory
	Notifier  Notifier
	Logger    *logging.Logger
	Settings  config.Settings
}

// Verifier sweeps completed snapshots and checks their backing files still
// exist on their volumes. Files deleted out-of-band flip file_exists to
// false; each sweep sends at most one aggregated missing-file notification,
// and only for snapshots newly discovered missing.
type Verifier struct {
	deps VerifierDeps
	now  func() time.Time
}

// NewVerifier creates an integrity verifier
func NewVerifier(deps VerifierDeps) *Verifier {
	return &Verifier{deps: deps, now: time.Now}
}

// RunSweep verifies every completed snapshot. A file lock in the configured
// lock directory keeps concurrent sweeps from double-notifying; when
// another sweep holds the lock this one is skipped. The lock releases with
// the process, so a crashed sweep never wedges the next one.
func (v *Verifier) RunSweep(ctx context.Context) error {
	lockDir := v.deps.Settings.LockDir()
	if err := os.MkdirAll(lockDir, 0o750); err != nil {
		return errors.NewExecutionError("failed to create lock directory", err).
			WithContext("dir", lockDir)
	}

	lock := flock.New(filepath.Join(lockDir, verifyLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.NewExecutionError("failed to acquire verify lock", err)
	}
	if !locked {
		v.deps.Logger.Debug("verification sweep already running, skipping")
		return nil
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, v.deps.Settings.VerifyTimeout())
	defer cancel()

	snapshots, err := v.deps.Snapshots.ListCompleted()
	if err != nil {
		return err
	}

	backends := make(map[string]storage.Backend)
	var missing []*model.Snapshot
	var result *multierror.Error

	for _, snapshot := range snapshots {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}

		backend, ok := backends[snapshot.VolumeID]
		if !ok {
			volume, err := v.deps.Volumes.GetVolume(snapshot.VolumeID)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			backend, err = v.deps.Storage.ForVolume(ctx, volume)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			backends[snapshot.VolumeID] = backend
		}

		newlyMissing, err := v.verify(ctx, backend, snapshot)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if newlyMissing {
			missing = append(missing, snapshot)
		}
	}

	if len(missing) > 0 {
		notify(v.deps.Logger, func() { v.deps.Notifier.SnapshotsMissing(missing) })
	}
	return result.ErrorOrNil()
}

// VerifyOne checks a single snapshot's backing file, notifying if it just
// went missing.
func (v *Verifier) VerifyOne(ctx context.Context, snapshotID string) error {
	snapshot, err := v.deps.Snapshots.GetSnapshot(snapshotID)
	if err != nil {
		return err
	}
	volume, err := v.deps.Volumes.GetVolume(snapshot.VolumeID)
	if err != nil {
		return err
	}
	backend, err := v.deps.Storage.ForVolume(ctx, volume)
	if err != nil {
		return err
	}

	newlyMissing, err := v.verify(ctx, backend, snapshot)
	if err != nil {
		return err
	}
	if newlyMissing {
		notify(v.deps.Logger, func() { v.deps.Notifier.SnapshotsMissing([]*model.Snapshot{snapshot}) })
	}
	return nil
}

// verify checks one snapshot and persists the verification result. Returns
// whether the file transitioned from existing to missing; a file that was
// already known missing, or whose presence was never recorded, does not
// notify. A backend error leaves
// file_exists untouched so a flaky volume cannot flip healthy snapshots.
func (v *Verifier) verify(ctx context.Context, backend storage.Backend, snapshot *model.Snapshot) (bool, error) {
	now := v.now()

	exists, err := backend.Exists(ctx, snapshot.Filename)
	if err != nil {
		snapshot.FileVerifiedAt = &now
		if saveErr := v.deps.Snapshots.SaveSnapshot(snapshot); saveErr != nil {
			return false, saveErr
		}
		return false, err
	}

	wasExisting := snapshot.FileExists != nil && *snapshot.FileExists
	snapshot.FileExists = &exists
	snapshot.FileVerifiedAt = &now
	if err := v.deps.Snapshots.SaveSnapshot(snapshot); err != nil {
		return false, err
	}

	newlyMissing := !exists && wasExisting
	if newlyMissing {
		v.deps.Logger.WithFields(map[string]interface{}{
			"snapshot_id": snapshot.ID,
			"key":         snapshot.Filename,
			"backend":     backend.Name(),
		}).Warn("Snapshot file missing from storage")
	}
	return newlyMissing, nil
}
