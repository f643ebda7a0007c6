// Package task contains the orchestrators that tie the engine together:
// the backup pipeline, the restore pipeline, the snapshot integrity sweep
// and snapshot deletion. Orchestrators read records through the model store
// interfaces and mutate only the state-transition fields they own.
package task

import (
	"dbvault/internal/logging"
	"dbvault/internal/model"
)

// Notifier receives terminal failure events. Implementations deliver them
// to operators; delivery problems must never fail the job, so orchestrators
// call through notify below.
type Notifier interface {
	BackupFailed(snapshot *model.Snapshot, err error)
	RestoreFailed(restore *model.Restore, err error)
	SnapshotsMissing(snapshots []*model.Snapshot)
}

// LogNotifier writes notification events to the log. It stands in where no
// external notification channel is configured.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) BackupFailed(snapshot *model.Snapshot, err error) {
	n.logger.WithFields(map[string]interface{}{
		"event":       "backup_failed",
		"snapshot_id": snapshot.ID,
		"database":    snapshot.DatabaseName,
		"error":       err.Error(),
	}).Warn("Backup failed")
}

func (n *LogNotifier) RestoreFailed(restore *model.Restore, err error) {
	n.logger.WithFields(map[string]interface{}{
		"event":      "restore_failed",
		"restore_id": restore.ID,
		"database":   restore.DatabaseName,
		"error":      err.Error(),
	}).Warn("Restore failed")
}

func (n *LogNotifier) SnapshotsMissing(snapshots []*model.Snapshot) {
	ids := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		ids = append(ids, s.ID)
	}
	n.logger.WithFields(map[string]interface{}{
		"event":        "snapshots_missing",
		"snapshot_ids": ids,
	}).Warn("Snapshot files missing from storage")
}

// notify runs a notification call, swallowing panics so a broken notifier
// can never fail the job that triggered it.
func notify(logger *logging.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("notification delivery panicked: %v", r)
		}
	}()
	fn()
}
