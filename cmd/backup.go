package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dbvault/internal/compress"
	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/queue"
	"dbvault/internal/task"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump, compress and upload one or more databases",
	RunE:  runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	addServerFlags(backupCmd)
	addVolumeFlags(backupCmd)
	backupCmd.Flags().StringArrayVar(&databases, "database", nil, "database to back up (repeatable)")
	backupCmd.Flags().BoolVar(&allDatabases, "all-databases", false, "back up every user database on the server")
	backupCmd.Flags().StringVar(&compressionKind, "compression", "gzip", "compression kind (gzip, zstd, lz4, sevenzip)")
	backupCmd.Flags().IntVar(&compressionLevel, "compression-level", 0, "compression level (0 uses the kind's default)")
	backupCmd.Flags().StringVar(&archivePassword, "archive-password", "", "encryption password for sevenzip archives")
}

func runBackup(cmd *cobra.Command, _ []string) error {
	if !allDatabases && len(databases) == 0 && serverFile == "" {
		return errors.NewValidationError("nothing to back up: pass --database, --all-databases or --file", nil)
	}

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

	// Fail before queueing when the volume configuration is unusable.
	if _, err := rt.storage.ForVolume(cmd.Context(), volume); err != nil {
		return err
	}

	backupTask := task.NewBackupTask(task.BackupDeps{
		Jobs:        rt.store,
		Snapshots:   rt.store,
		Servers:     rt.store,
		Volumes:     rt.store,
		Engines:     rt.engines,
		Storage:     rt.storage,
		Compressors: rt.compressors,
		Runner:      rt.executor,
		Notifier:    rt.notifier,
		Logger:      rt.logger,
		Settings:    rt.cfg,
		CompressOptions: compress.Options{
			Level:    compressionLevel,
			Password: archivePassword,
		},
	})

	jobs, err := enqueueBackupJobs(rt, server, volume)
	if err != nil {
		return err
	}

	q := queue.New(len(jobs), queue.Handlers{
		Backup: backupTask.Run,
		Restore: func(context.Context, string) error {
			return errors.NewValidationError("restore jobs are not dispatched by the backup command", nil)
		},
	}, rt.cfg, rt.logger)

	q.Start(cmd.Context())
	for _, jobID := range jobs {
		q.Enqueue(queue.Work{Kind: model.JobKindBackup, JobID: jobID})
	}
	q.Stop()

	return reportJobs(rt, jobs)
}

// enqueueBackupJobs creates one job+snapshot placeholder per requested
// database, or a single all-databases job the orchestrator expands itself.
func enqueueBackupJobs(rt *runtime, server *model.DatabaseServer, volume *model.Volume) ([]string, error) {
	targets := databases
	if allDatabases || len(targets) == 0 {
		targets = []string{""}
	}

	var jobIDs []string
	for _, database := range targets {
		jobID := uuid.NewString()
		snapshot := &model.Snapshot{
			ID:           uuid.NewString(),
			ServerID:     server.ID,
			VolumeID:     volume.ID,
			JobID:        jobID,
			DatabaseName: database,
			DatabaseType: server.Type,
			DatabaseHost: server.Host,
			Trigger:      model.TriggerManual,
			Compression:  model.CompressionType(compressionKind),
		}
		if err := rt.store.SaveSnapshot(snapshot); err != nil {
			return nil, err
		}

		job := &model.BackupJob{
			ID:         jobID,
			Kind:       model.JobKindBackup,
			Status:     model.JobStatusPending,
			SnapshotID: snapshot.ID,
		}
		job.MarkQueued(uuid.NewString())
		if err := rt.store.SaveJob(job); err != nil {
			return nil, err
		}
		jobIDs = append(jobIDs, jobID)
	}
	return jobIDs, nil
}

// reportJobs prints the outcome of each job and fails if any job failed
func reportJobs(rt *runtime, jobIDs []string) error {
	failed := 0
	for _, jobID := range jobIDs {
		job, err := rt.store.GetJob(jobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case model.JobStatusCompleted:
			rt.logger.Infof("job %s completed", job.ID)
		default:
			failed++
			rt.logger.Errorf("job %s %s: %s", job.ID, job.Status, job.ErrorMessage)
		}
	}
	if failed > 0 {
		return errors.NewExecutionError(fmt.Sprintf("%d of %d jobs failed", failed, len(jobIDs)), nil)
	}
	return nil
}
