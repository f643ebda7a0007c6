package task

import (
	"context"

	"dbvault/internal/logging"
	"dbvault/internal/model"
	"dbvault/internal/storage"
)

// SnapshotDeleter removes a snapshot record together with its backing file,
// so deleting from the catalog never strands artifacts on the volume.
type SnapshotDeleter struct {
	snapshots model.SnapshotStore
	volumes   model.VolumeStore
	storage   *storage.Factory
	logger    *logging.Logger
}

// NewSnapshotDeleter creates a snapshot deleter
func NewSnapshotDeleter(snapshots model.SnapshotStore, volumes model.VolumeStore, factory *storage.Factory, logger *logging.Logger) *SnapshotDeleter {
	return &SnapshotDeleter{snapshots: snapshots, volumes: volumes, storage: factory, logger: logger}
}

// Delete removes the backing file first, then the record. When the file
// removal fails the record survives, so a retry can still find the key.
func (d *SnapshotDeleter) Delete(ctx context.Context, snapshotID string) error {
	snapshot, err := d.snapshots.GetSnapshot(snapshotID)
	if err != nil {
		return err
	}

	if snapshot.Filename != "" {
		volume, err := d.volumes.GetVolume(snapshot.VolumeID)
		if err != nil {
			return err
		}
		backend, err := d.storage.ForVolume(ctx, volume)
		if err != nil {
			return err
		}
		if err := backend.Delete(ctx, snapshot.Filename); err != nil {
			return err
		}
		d.logger.WithFields(map[string]interface{}{
			"snapshot_id": snapshot.ID,
			"key":         snapshot.Filename,
			"backend":     backend.Name(),
		}).Info("Snapshot file deleted")
	}

	return d.snapshots.DeleteSnapshot(snapshotID)
}
