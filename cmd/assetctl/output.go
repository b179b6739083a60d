package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeReconcileSummary(w io.Writer, report *models.ReconciliationReport) error {
	if err := writePlain(w, "reconciled in %s: %d documents, %d references, %d blobs\n",
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond), report.DocumentsScanned, report.ReferencesChecked, report.BlobsScanned); err != nil {
		return err
	}
	if err := writePlain(w, "links repaired: %d, links pruned: %d\n", report.LinksRepaired, report.LinksPruned); err != nil {
		return err
	}
	if err := writePlain(w, "missing references removed: %d\n", len(report.MissingReferences)); err != nil {
		return err
	}
	for _, m := range report.MissingReferences {
		if err := writePlain(w, "  %s/%s %s -> %s\n", m.Collection, m.DocumentID, m.Field, m.BlobID); err != nil {
			return err
		}
	}
	if err := writePlain(w, "orphan candidates: %d\n", len(report.Orphans)); err != nil {
		return err
	}
	for _, o := range report.Orphans {
		if err := writePlain(w, "  %s %s (%d bytes, created %s)\n", o.BlobID, o.Filename, o.SizeBytes, o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")); err != nil {
			return err
		}
	}
	if len(report.Failures) == 0 {
		return nil
	}
	if err := writePlain(w, "failures: %d\n", len(report.Failures)); err != nil {
		return err
	}
	for _, f := range report.Failures {
		if err := writePlain(w, "  %s: %s\n", f.Item, f.Error); err != nil {
			return err
		}
	}
	return nil
}

func writeCleanupSummary(w io.Writer, result *models.OrphanCleanupResult) error {
	if result.DryRun {
		if err := writePlain(w, "dry run: %d orphan blobs older than %s would be removed\n", len(result.Candidates), result.Grace); err != nil {
			return err
		}
		for _, o := range result.Candidates {
			if err := writePlain(w, "  %s %s\n", o.BlobID, o.Filename); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writePlain(w, "removed %d orphan blobs\n", len(result.Deleted)); err != nil {
		return err
	}
	for _, id := range result.Deleted {
		if err := writePlain(w, "  %s\n", id); err != nil {
			return err
		}
	}
	if len(result.Skipped) > 0 {
		return writePlain(w, "skipped %d blobs that gained a reference\n", len(result.Skipped))
	}
	return nil
}

func writeRecoverySummary(w io.Writer, result *models.RecoveryResult) error {
	if err := writePlain(w, "converted: %d, reverted: %d, failed: %d\n", len(result.Converted), len(result.Reverted), len(result.Failed)); err != nil {
		return err
	}
	for _, id := range result.Failed {
		if err := writePlain(w, "  failed %s\n", id); err != nil {
			return err
		}
	}
	return nil
}
