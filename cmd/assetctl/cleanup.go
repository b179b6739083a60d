package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-admission-api/internal/app"
	"github.com/noah-isme/sma-admission-api/pkg/config"
)

func newCleanupOrphansCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		grace time.Duration
		apply bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup-orphans",
		Short: "List orphan blobs older than the grace period, deleting them with --apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if grace < 0 {
				return fmt.Errorf("--grace must be >= 0")
			}

			return withApp(cfg, func(a *app.App) error {
				result, err := a.Assets.CleanupOrphans(cmd.Context(), operator, grace, apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(stdout(cmd), result)
				}
				return writeCleanupSummary(stdout(cmd), result)
			})
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", cfg.Blob.OrphanGraceDelay, "only consider orphans older than this")
	cmd.Flags().BoolVar(&apply, "apply", false, "delete the candidates (default is a dry run)")
	return cmd
}
