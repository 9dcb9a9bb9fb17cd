// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Sheet names in the workbook, in order.
const (
	SheetSummary      = "Summary"
	SheetMeasurements = "Measurements"
	SheetConflicts    = "Conflicts"
)

// writeWorkbook writes a workbook with one sheet for the report sections,
// one for measurements, and one for conflicts.
func writeWorkbook(w io.Writer, r types.FinalReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("naming summary sheet: %w", err)
	}
	for _, name := range []string{SheetMeasurements, SheetConflicts} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	rows := [][]any{
		{"Title", r.Title},
		{"Patient", r.Patient.Name},
		{"Age", r.Patient.Age},
		{"Records reviewed", r.RecordCount},
		{"Complete", r.Complete},
	}
	if r.Failure != nil {
		rows = append(rows, []any{"Failed stage", r.Failure.Stage}, []any{"Failure reason", r.Failure.Reason})
	}
	rows = append(rows, []any{})
	rows = append(rows, []any{"Section", "Available", "Content"})
	for _, s := range r.Sections {
		content := strings.Join(s.Lines, "\n")
		if !s.Available {
			content = s.Reason
		}
		rows = append(rows, []any{s.Title, s.Available, content})
	}
	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}

	rows = [][]any{{"Test", "Value", "Unit", "Flag", "Date", "Clinician", "Source"}}
	for _, m := range r.Measurements {
		rows = append(rows, []any{m.Test, cellValue(m.Value), m.Unit, m.Flag, m.Date, m.Clinician, m.Source})
	}
	if err := writeRows(f, SheetMeasurements, rows); err != nil {
		return err
	}

	rows = [][]any{{"Kind", "Subject", "Records", "Explanation", "Question"}}
	for _, c := range r.Conflicts {
		var refs []string
		for _, ref := range c.Records {
			refs = append(refs, ref.Label())
		}
		rows = append(rows, []any{c.Kind.Title(), c.Subject, strings.Join(refs, "; "), c.Explanation, c.Question})
	}
	if err := writeRows(f, SheetConflicts, rows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cellValue stores numeric lab values as numbers so they sort and chart.
func cellValue(v string) any {
	if f, ok := types.LabValue(v).Float(); ok && strings.TrimSpace(v) == strings.TrimLeft(strings.TrimSpace(v), "<>=~ ") {
		return f
	}
	return v
}
