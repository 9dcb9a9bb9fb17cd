// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/record-harmonizer/internal/harmonize"
	"github.com/pdiddy/record-harmonizer/internal/pipeline"
	"github.com/pdiddy/record-harmonizer/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	statusStyles = map[pipeline.Status]lipgloss.Style{
		pipeline.StatusOK:       lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		pipeline.StatusDegraded: lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C14E")),
		pipeline.StatusFailed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		pipeline.StatusSkipped:  dimStyle,
	}
)

// printStatus writes a boxed per-stage summary of a run.
func printStatus(w io.Writer, out harmonize.Outcome) {
	lines := []string{titleStyle.Render("run " + out.RunID)}
	for _, s := range out.Result.Stages {
		line := fmt.Sprintf("%-12s %s", s.Name, statusStyles[s.Status].Render(fmt.Sprintf("%-8s", s.Status)))
		if s.Status != pipeline.StatusSkipped {
			line += dimStyle.Render(fmt.Sprintf(" %6s", s.Duration.Round(time.Millisecond)))
		}
		if len(s.Markers) > 0 {
			line += dimStyle.Render("  " + strings.Join(s.Markers, ", "))
		}
		lines = append(lines, line)
	}

	r := out.Report
	verdict := statusStyles[pipeline.StatusOK].Render("complete")
	if !r.Complete {
		verdict = statusStyles[pipeline.StatusFailed].Render("incomplete")
	}
	lines = append(lines, "", fmt.Sprintf("%s · %d records · %d conflicts", verdict, r.RecordCount, len(r.Conflicts)))

	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

// printRuns writes archived runs as a table, newest first.
func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-36s  %-20s  %-16s  %-10s  %s",
		"Run", "Patient", "Created", "Status", "Conflicts")))
	for _, r := range runs {
		status := statusStyles[pipeline.StatusOK].Render(fmt.Sprintf("%-10s", "complete"))
		if !r.Complete {
			status = statusStyles[pipeline.StatusFailed].Render(fmt.Sprintf("%-10s", "failed:"+r.FailedStage))
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-16s  %s  %d\n",
			r.ID, truncate(r.Patient, 20), r.CreatedAt.Local().Format("2006-01-02 15:04"), status, r.Conflicts)
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
