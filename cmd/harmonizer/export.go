// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/record-harmonizer/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Re-export an archived report",
	Long: `Export writes an archived run's report in another format. XLSX
workbooks hold the summary, the measurements, and the flagged conflicts
on separate sheets and need --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	st, err := openArchive()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("out")
	return emit(cmd.OutOrStdout(), path, run.Report, f)
}

func init() {
	exportCmd.Flags().String("format", "markdown", "output format: markdown, json, yaml, or xlsx")
	exportCmd.Flags().String("out", "", "output file (required for xlsx)")

	rootCmd.AddCommand(exportCmd)
}
