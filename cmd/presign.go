package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dbvault/internal/errors"
	"dbvault/internal/storage"
)

var (
	presignArtifact string
	presignTTL      time.Duration
)

var presignCmd = &cobra.Command{
	Use:   "presign",
	Short: "Generate a time-limited download URL for a stored artifact",
	Long: `Generates a signed download URL for an artifact on an object-storage
volume (s3 or gcs). Other volume types cannot hand out direct URLs; download
through the restore path instead.`,
	RunE: runPresign,
}

func init() {
	rootCmd.AddCommand(presignCmd)

	addVolumeFlags(presignCmd)
	presignCmd.Flags().StringVar(&presignArtifact, "artifact", "", "artifact key on the volume")
	presignCmd.Flags().DurationVar(&presignTTL, "ttl", 15*time.Minute, "how long the URL stays valid")
	presignCmd.MarkFlagRequired("artifact")
}

func runPresign(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}

	volume, err := rt.registerVolume()
	if err != nil {
		return err
	}
	backend, err := rt.storage.ForVolume(cmd.Context(), volume)
	if err != nil {
		return err
	}

	presigner, ok := backend.(storage.Presigner)
	if !ok {
		return errors.NewValidationError(
			fmt.Sprintf("%s volumes cannot presign download URLs", backend.Name()), nil)
	}

	url, err := presigner.PresignedDownloadURL(cmd.Context(), presignArtifact, presignTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), url)
	return nil
}
