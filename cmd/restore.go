package cmd

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dbvault/internal/compress"
	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/task"
)

var (
	restoreArtifact    string
	restoreDestination string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Download a stored snapshot and replay it into a target server",
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	addServerFlags(restoreCmd)
	addVolumeFlags(restoreCmd)
	restoreCmd.Flags().StringVar(&restoreArtifact, "artifact", "", "artifact key on the volume")
	restoreCmd.Flags().StringVar(&restoreDestination, "destination", "", "destination database name")
	restoreCmd.Flags().StringVar(&compressionKind, "compression", "", "compression kind of the artifact (inferred from the extension when empty)")
	restoreCmd.Flags().StringVar(&archivePassword, "archive-password", "", "decryption password for sevenzip archives")
	restoreCmd.MarkFlagRequired("artifact")
	restoreCmd.MarkFlagRequired("destination")
}

func runRestore(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}

	server, err := rt.registerServer()
	if err != nil {
		return err
	}
	volume, err := rt.registerVolume()
	if err != nil {
		return err
	}

	kind, err := artifactCompression(restoreArtifact, compressionKind)
	if err != nil {
		return err
	}

	snapshot := &model.Snapshot{
		ID:           uuid.NewString(),
		ServerID:     server.ID,
		VolumeID:     volume.ID,
		DatabaseName: restoreDestination,
		DatabaseType: server.Type,
		DatabaseHost: server.Host,
		Filename:     restoreArtifact,
		Compression:  kind,
	}
	if err := rt.store.SaveSnapshot(snapshot); err != nil {
		return err
	}

	restore := &model.Restore{
		ID:             uuid.NewString(),
		SnapshotID:     snapshot.ID,
		TargetServerID: server.ID,
		DatabaseName:   restoreDestination,
		JobID:          uuid.NewString(),
		CreatedAt:      time.Now(),
	}
	if err := rt.store.SaveRestore(restore); err != nil {
		return err
	}

	job := &model.BackupJob{
		ID:        restore.JobID,
		Kind:      model.JobKindRestore,
		Status:    model.JobStatusPending,
		RestoreID: restore.ID,
	}
	job.MarkQueued(uuid.NewString())
	if err := rt.store.SaveJob(job); err != nil {
		return err
	}

	restoreTask := task.NewRestoreTask(task.RestoreDeps{
		Jobs:            rt.store,
		Restores:        rt.store,
		Snapshots:       rt.store,
		Servers:         rt.store,
		Volumes:         rt.store,
		Engines:         rt.engines,
		Storage:         rt.storage,
		Compressors:     rt.compressors,
		Runner:          rt.executor,
		Notifier:        rt.notifier,
		Logger:          rt.logger,
		Settings:        rt.cfg,
		CompressOptions: compress.Options{Password: archivePassword},
	})

	// Restores run exactly once, no queue retry policy applies.
	if err := restoreTask.Run(cmd.Context(), job.ID); err != nil {
		return err
	}
	rt.logger.Infof("restored %s into %s", restoreArtifact, restoreDestination)
	return nil
}

// artifactCompression resolves the artifact's compression kind, inferring it
// from the filename extension when not given explicitly.
func artifactCompression(artifact, explicit string) (model.CompressionType, error) {
	if explicit != "" {
		return model.CompressionType(explicit), nil
	}
	switch {
	case strings.HasSuffix(artifact, ".gz"):
		return model.CompressionGzip, nil
	case strings.HasSuffix(artifact, ".zst"):
		return model.CompressionZstd, nil
	case strings.HasSuffix(artifact, ".lz4"):
		return model.CompressionLZ4, nil
	case strings.HasSuffix(artifact, ".7z"):
		return model.CompressionSevenZip, nil
	default:
		return "", errors.NewValidationError("cannot infer compression kind from artifact name, pass --compression", nil).
			WithContext("artifact", artifact)
	}
}
