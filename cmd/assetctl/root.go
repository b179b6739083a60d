package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/app"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
)

// operator is the identity recorded in audit rows written by the CLI.
var operator = &models.Identity{UserID: "assetctl", Role: models.RoleSuperAdmin, FullName: "assetctl"}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:           "assetctl",
		Short:         "Operator tooling for admission assets and workflow recovery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newReconcileCmd(cfg, &jsonOutput),
		newCleanupOrphansCmd(cfg, &jsonOutput),
		newRecoverAdmissionsCmd(cfg, &jsonOutput),
	)

	return cmd
}

// withApp opens the stores, runs fn and closes everything again. Background
// workers are not started.
func withApp(cfg *config.Config, fn func(a *app.App) error) error {
	logr, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(cfg, logr.With(zap.String("cli", "assetctl")))
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	return fn(a)
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
