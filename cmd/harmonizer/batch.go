// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/export"
	"github.com/pdiddy/record-harmonizer/internal/harmonize"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Harmonize documents for every patient in a manifest",
	Long: `Batch reads a YAML manifest of patients and runs the pipeline for each,
with at most --concurrency runs in flight. One report per patient is
written to --out-dir, named after the run ID.

Manifest format:

  patients:
    - id: jane-2024          # optional, default: random UUID
      name: Jane Doe
      age: 55
      documents:
        - records/lab_report.pdf    # relative to the manifest
        - s3://bucket/jane/note.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	reqs, err := harmonize.LoadManifest(args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	h, closeStore, err := newHarmonizer(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	outs, runErr := h.RunBatch(ctx, reqs, cfg.Batch.Concurrency)

	var incomplete int
	for _, out := range outs {
		if out.RunID == "" || out.Report.Title == "" {
			continue
		}
		path := filepath.Join(outDir, fileName(out.RunID)+f.Ext())
		if err := export.ToFile(path, out.Report, f); err != nil {
			return err
		}
		logger.Info("batch: report written", zap.String("run_id", out.RunID), zap.String("path", path))
		printStatus(cmd.ErrOrStderr(), out)
		if !out.Report.Complete {
			incomplete++
		}
	}
	if runErr != nil {
		return runErr
	}
	if incomplete > 0 {
		return fmt.Errorf("%d of %d reports incomplete", incomplete, len(outs))
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fileName makes a run ID safe to use as a file name.
func fileName(id string) string {
	return unsafeName.ReplaceAllString(id, "_")
}

func init() {
	def := types.DefaultConfig()
	batchCmd.Flags().Int("concurrency", def.Batch.Concurrency, "maximum runs in flight")
	batchCmd.Flags().String("out-dir", "reports", "directory for per-patient reports")
	batchCmd.Flags().String("format", "markdown", "report format: markdown, json, yaml, or xlsx")

	bindFlag("batch.concurrency", batchCmd.Flags().Lookup("concurrency"))

	rootCmd.AddCommand(batchCmd)
}
