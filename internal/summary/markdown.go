// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summary

import (
	"fmt"
	"strings"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Markdown renders the report. The output depends only on the report, so
// identical reports render byte-identical documents.
func Markdown(r types.FinalReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)

	if r.Patient.Name != "" {
		fmt.Fprintf(&b, "**Patient:** %s", r.Patient.Name)
		if r.Patient.Age > 0 {
			fmt.Fprintf(&b, ", age %d", r.Patient.Age)
		}
		b.WriteString("  \n")
	}
	fmt.Fprintf(&b, "**Records reviewed:** %d\n", r.RecordCount)

	if !r.Complete {
		b.WriteString("\n> **Incomplete report.**")
		if r.Failure != nil {
			fmt.Fprintf(&b, " The run stopped at stage `%s`: %s", r.Failure.Stage, oneLine(r.Failure.Reason))
		}
		b.WriteString("\n")
	}

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Title)
		switch {
		case !s.Available:
			fmt.Fprintf(&b, "_Unavailable: %s_\n", oneLine(s.Reason))
		case s.Title == TitleMeasurements && len(r.Measurements) > 0:
			writeMeasurements(&b, r.Measurements)
		case s.Prose:
			b.WriteString(strings.Join(s.Lines, "\n\n"))
			b.WriteString("\n")
		case s.Title == TitleQuestions:
			for i, l := range s.Lines {
				fmt.Fprintf(&b, "%d. %s\n", i+1, l)
			}
		default:
			for _, l := range s.Lines {
				fmt.Fprintf(&b, "- %s\n", l)
			}
		}
	}

	b.WriteString("\n---\n\n_This report organizes your records; it is not medical advice._\n")
	return b.String()
}

func writeMeasurements(b *strings.Builder, ms []types.Measurement) {
	b.WriteString("| Test | Value | Date | Clinician | Source |\n")
	b.WriteString("| :--- | :--- | :--- | :--- | :--- |\n")
	for _, m := range ms {
		value := strings.TrimSpace(m.Value + " " + m.Unit)
		if m.Flag != "" {
			value += " (" + m.Flag + ")"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			cell(m.Test), cell(value), cell(m.Date), cell(m.Clinician), cell(m.Source))
	}
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
