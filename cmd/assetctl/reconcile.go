package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-admission-api/internal/app"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/config"
)

func newReconcileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFormat, err := parseFormat(format)
			if err != nil {
				return err
			}

			return withApp(cfg, func(a *app.App) error {
				report, skipped, err := a.Scheduler.RunNow(cmd.Context())
				if err != nil {
					return err
				}
				if skipped {
					return fmt.Errorf("another reconciliation pass holds the lease; try again later")
				}

				if reportFormat != models.ReportFormatJSON {
					rendered, err := a.Exports.RenderReconciliation(report, reportFormat)
					if err != nil {
						return err
					}
					if out == "" {
						_, err = stdout(cmd).Write(rendered.Data)
						return err
					}
					if err := os.WriteFile(out, rendered.Data, 0o644); err != nil {
						return fmt.Errorf("write report: %w", err)
					}
					return writePlain(stdout(cmd), "report written to %s\n", out)
				}

				if *jsonOutput {
					return writeJSON(stdout(cmd), report)
				}
				return writeReconcileSummary(stdout(cmd), report)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "report format: json, csv or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write csv/pdf output to this file instead of stdout")
	return cmd
}

func parseFormat(raw string) (models.ReportFormat, error) {
	switch f := models.ReportFormat(raw); f {
	case models.ReportFormatJSON, models.ReportFormatCSV, models.ReportFormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("--format must be one of json, csv, pdf (got %q)", raw)
	}
}
