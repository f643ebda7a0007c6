package cmd

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dbvault/internal/model"
	"dbvault/internal/task"
)

var verifyArtifact string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that stored snapshot artifacts still exist on their volume",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	addVolumeFlags(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyArtifact, "artifact", "", "artifact key to verify")
	verifyCmd.MarkFlagRequired("artifact")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}

	volume, err := rt.registerVolume()
	if err != nil {
		return err
	}

	snapshot := &model.Snapshot{
		ID:       uuid.NewString(),
		VolumeID: volume.ID,
		Filename: verifyArtifact,
	}
	now := time.Now()
	snapshot.CompletedAt = &now
	if err := rt.store.SaveSnapshot(snapshot); err != nil {
		return err
	}

	verifier := task.NewVerifier(task.VerifierDeps{
		Snapshots: rt.store,
		Volumes:   rt.store,
		Storage:   rt.storage,
		Notifier:  rt.notifier,
		Logger:    rt.logger,
		Settings:  rt.cfg,
	})
	if err := verifier.RunSweep(cmd.Context()); err != nil {
		return err
	}

	checked, err := rt.store.GetSnapshot(snapshot.ID)
	if err != nil {
		return err
	}
	if checked.FileExists != nil && *checked.FileExists {
		rt.logger.Infof("artifact %s present", verifyArtifact)
	} else {
		rt.logger.Errorf("artifact %s missing", verifyArtifact)
	}
	return nil
}
