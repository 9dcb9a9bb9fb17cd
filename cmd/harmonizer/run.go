// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pdiddy/record-harmonizer/internal/export"
	"github.com/pdiddy/record-harmonizer/internal/harmonize"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// errIncomplete makes the process exit non-zero after an incomplete report
// has been written.
var errIncomplete = errors.New("report is incomplete")

var runCmd = &cobra.Command{
	Use:   "run [documents...]",
	Short: "Harmonize one patient's documents and print the summary report",
	Long: `Run standardizes each document into a record, maps the records onto a
timeline, detects conflicts, and writes the summary report to stdout
(or --out). Documents are local paths or s3://bucket/key references.

PDFs and images are converted through the configured container images;
plain text and Markdown files are read directly.

The report is always written. When a stage fails or the run times out
the report is marked incomplete, names the stage, and the command exits
non-zero.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	format, _ := cmd.Flags().GetString("format")
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	h, closeStore, err := newHarmonizer(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	name, _ := cmd.Flags().GetString("name")
	age, _ := cmd.Flags().GetInt("age")
	id, _ := cmd.Flags().GetString("run-id")
	out, err := h.Run(ctx, harmonize.Request{
		ID:        id,
		Documents: args,
		Patient:   types.UserProfile{Name: name, Age: age},
	})
	if err != nil {
		return err
	}

	if dump, _ := cmd.Flags().GetString("dump-board"); dump != "" {
		if err := dumpBoard(dump, out); err != nil {
			return err
		}
	}

	path, _ := cmd.Flags().GetString("out")
	if err := emit(cmd.OutOrStdout(), path, out.Report, f); err != nil {
		return err
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		printStatus(cmd.ErrOrStderr(), out)
	}
	if !out.Report.Complete {
		return errIncomplete
	}
	return nil
}

func dumpBoard(path string, out harmonize.Outcome) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating board dump: %w", err)
	}
	defer fh.Close()
	return harmonize.DumpBoard(fh, out.Board)
}

func init() {
	def := types.DefaultConfig()
	runCmd.Flags().String("name", "", "patient name shown on the report")
	runCmd.Flags().Int("age", 0, "patient age shown on the report")
	runCmd.Flags().String("run-id", "", "run identifier (default: random UUID)")
	runCmd.Flags().String("format", "markdown", "output format: markdown, json, yaml, or xlsx")
	runCmd.Flags().String("out", "", "write the report to this file instead of stdout")
	runCmd.Flags().String("dump-board", "", "write every blackboard entry as YAML to this file")
	runCmd.Flags().Duration("timeout", def.Pipeline.RunTimeout, "bound on the whole run (0 disables)")
	runCmd.Flags().BoolP("quiet", "q", false, "do not print the stage summary to stderr")

	bindFlag("pipeline.run_timeout", runCmd.Flags().Lookup("timeout"))

	rootCmd.AddCommand(runCmd)
}
