// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/record-harmonizer/internal/summary"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

func sampleReport() types.FinalReport {
	ref := types.RecordRef{ID: "a1", SourceID: "lab_report.pdf", Date: "2024-05-10"}
	return types.FinalReport{
		Title:       summary.ReportTitle,
		Patient:     types.UserProfile{Name: "Jane Doe", Age: 55},
		RecordCount: 2,
		Complete:    false,
		Failure:     &types.RunFailure{Stage: "relate", Reason: "narrator timed out", TimedOut: true},
		Measurements: []types.Measurement{
			{Test: "Cholesterol", Value: "210", Unit: "mg/dL", Date: "2024-05-10", Clinician: "Dr. Smith", Source: "lab_report.pdf", Flag: "High"},
			{Test: "Glucose", Value: "<5", Unit: "mmol/L", Source: "lab_report.pdf"},
		},
		Conflicts: []types.Conflict{{
			Kind: types.ConflictDiagnosisDiscrepancy, Subject: "Cholesterol", Records: []types.RecordRef{ref},
			Explanation: "Cholesterol is high.", Question: "Should I be treated?",
		}},
		Sections: []types.Section{
			{Title: summary.TitleOverview, Available: true, Prose: true, Lines: []string{"Two records."}},
			{Title: summary.TitleTimeline, Reason: "not produced: run stopped at stage relate"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{in: "", want: Markdown},
		{in: "MD", want: Markdown},
		{in: "json", want: JSON},
		{in: "yml", want: YAML},
		{in: "xlsx", want: XLSX},
		{in: "pdf", err: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, ".md", Markdown.Ext())
	assert.Equal(t, ".xlsx", XLSX.Ext())
	assert.True(t, XLSX.Binary())
}

func TestWrite_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), Markdown))
	assert.Equal(t, summary.Markdown(sampleReport()), buf.String())
}

func TestWrite_StructuredFormats(t *testing.T) {
	want := sampleReport()

	var jbuf bytes.Buffer
	require.NoError(t, Write(&jbuf, want, JSON))
	var fromJSON types.FinalReport
	require.NoError(t, json.Unmarshal(jbuf.Bytes(), &fromJSON))
	assert.Equal(t, want, fromJSON)

	var ybuf bytes.Buffer
	require.NoError(t, Write(&ybuf, want, YAML))
	var fromYAML types.FinalReport
	require.NoError(t, yaml.Unmarshal(ybuf.Bytes(), &fromYAML))
	assert.Equal(t, want, fromYAML)
	assert.Contains(t, ybuf.String(), "stage: relate")
}

func TestWrite_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ToFile(path, sampleReport(), XLSX))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetMeasurements, SheetConflicts}, f.GetSheetList())

	rows, err := f.GetRows(SheetMeasurements)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Test", "Value", "Unit", "Flag", "Date", "Clinician", "Source"}, rows[0])
	assert.Equal(t, "Cholesterol", rows[1][0])
	assert.Equal(t, "210", rows[1][1])
	assert.Equal(t, "High", rows[1][3])
	assert.Equal(t, "<5", rows[2][1])

	rows, err = f.GetRows(SheetConflicts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lab/diagnosis discrepancy", rows[1][0])
	assert.Equal(t, "lab_report.pdf (2024-05-10)", rows[1][2])

	rows, err = f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Failed stage", "relate"}, rows[5])

	typ, err := f.GetCellType(SheetMeasurements, "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
}
