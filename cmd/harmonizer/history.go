// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/record-harmonizer/internal/export"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List archived runs or show one archived report",
	Long: `History lists runs saved with --archive, newest first. Given a run ID it
prints that run's report as it was rendered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openArchive()
	if err != nil {
		return err
	}
	defer st.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return export.Write(w, run.Report, export.JSON)
		}
		_, err = fmt.Fprint(w, run.Markdown)
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := st.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	printRuns(w, runs)
	return nil
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 for all)")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(historyCmd)
}
