package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/risktor/risktor/pkg/storage"
)

// NewStorageCommand wires CLI helpers for the local scan workspace.
func NewStorageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "storage",
		Short:   "Manage the local scan workspace",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newStorageGCCommand())

	return cmd
}

func newStorageGCCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete stored scans that violate the retention policy",
		Long: `Applies the retention policy to the scan workspace: scans older than
--max-age-days go first, then the oldest scans beyond --max-scans. Without
flags the configured retention policy applies; with no policy at all the
command is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storageConfig, ok := storage.ConfigFromContext(cmd.Context())
			if !ok {
				return errors.New("storage is disabled; gc needs a storage workspace")
			}

			maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")
			maxScans, _ := cmd.Flags().GetInt("max-scans")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			backend, err := storage.NewLocalBackend(cmd.Context(), storageConfig)
			if err != nil {
				return fmt.Errorf("open storage workspace: %w", err)
			}
			defer func() {
				if err := backend.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close storage backend")
				}
			}()
			if err := backend.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("initialize storage workspace: %w", err)
			}

			opts := storage.GCOptions{DryRun: dryRun}
			if maxAgeDays > 0 || maxScans > 0 {
				opts.Retention = &storage.RetentionConfig{
					MaxAgeDays: maxAgeDays,
					MaxScans:   maxScans,
				}
			}

			result, err := backend.GarbageCollect(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("garbage collect: %w", err)
			}

			for _, gcErr := range result.Errors {
				log.Warn().Err(gcErr).Msg("gc deletion error")
			}

			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			fmt.Printf("%s %d scan(s), freeing %d bytes\n", verb, result.ScansDeleted, result.BytesFreed)
			for _, id := range result.DeletedScanIDs {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().Int("max-age-days", 0, "Delete scans older than this many days (overrides configured retention)")
	cmd.Flags().Int("max-scans", 0, "Keep at most this many scans (overrides configured retention)")
	cmd.Flags().Bool("dry-run", false, "Report what would be deleted without deleting")

	return cmd
}
