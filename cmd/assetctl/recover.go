package main

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-admission-api/internal/app"
	"github.com/noah-isme/sma-admission-api/pkg/config"
)

func newRecoverAdmissionsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "recover-admissions",
		Short: "Finish or revert admission requests stuck in approved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app.App) error {
				result, err := a.Admissions.RecoverStranded(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(stdout(cmd), result)
				}
				return writeRecoverySummary(stdout(cmd), result)
			})
		},
	}
}
