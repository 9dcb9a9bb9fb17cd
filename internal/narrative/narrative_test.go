// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package narrative

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

func sampleTimeline() types.Timeline {
	lab := types.RecordRef{ID: "a", SourceID: "lab_report.pdf", Date: "2024-05-10"}
	note := types.RecordRef{ID: "b", SourceID: "doctor_note.jpg"}
	return types.Timeline{
		Records: []types.Record{{ID: "a", SourceID: "lab_report.pdf"}, {ID: "b", SourceID: "doctor_note.jpg"}},
		Entries: []types.TimelineEntry{
			{Date: "2024-05-10", Records: []types.RecordRef{lab}, Clinicians: []string{"Dr. Smith"}},
			{Records: []types.RecordRef{note}},
		},
		Relations: []types.Relation{{Kind: types.RelationSharedEntity, From: lab, To: note, Detail: "both mention Atenolol"}},
	}
}

func TestTemplate_Mapping(t *testing.T) {
	tl := sampleTimeline()
	text, err := Template{}.Narrate(context.Background(), collab.NarrativeRequest{Role: collab.RoleMapping, Payload: &tl})
	require.NoError(t, err)

	assert.Equal(t, "The timeline links 2 records across 1 dated encounter.\n"+
		"2024-05-10: lab_report.pdf (Dr. Smith).\n"+
		"Undated: doctor_note.jpg.\n"+
		"lab_report.pdf and doctor_note.jpg: both mention Atenolol.", text)
}

func TestTemplate_Conflict(t *testing.T) {
	tests := []struct {
		name   string
		report types.ConflictReport
		want   string
	}{
		{
			name:   "no findings",
			report: types.ConflictReport{RecordsScanned: 2},
			want:   "No conflicts were found across 2 records.",
		},
		{
			name: "one finding",
			report: types.ConflictReport{RecordsScanned: 1, Findings: []types.Conflict{
				{Kind: types.ConflictDiagnosisDiscrepancy, Subject: "Cholesterol"},
			}},
			want: "1 conflict found across 1 record: 1 lab/diagnosis discrepancy.",
		},
		{
			name: "mixed findings",
			report: types.ConflictReport{RecordsScanned: 3, Findings: []types.Conflict{
				{Kind: types.ConflictDosageMismatch, Subject: "Atenolol"},
				{Kind: types.ConflictDiagnosisDiscrepancy, Subject: "Cholesterol"},
				{Kind: types.ConflictDosageMismatch, Subject: "Metformin"},
			}},
			want: "3 conflicts found across 3 records: 2 dosage mismatches and 1 lab/diagnosis discrepancy.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Template{}.Narrate(context.Background(), collab.NarrativeRequest{Role: collab.RoleConflict, Payload: tt.report})
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestTemplate_Summary(t *testing.T) {
	tl := sampleTimeline()
	in := collab.SummaryInput{
		Patient:   types.UserProfile{Name: "Jane Doe", Age: 55},
		Timeline:  &tl,
		Conflicts: &types.ConflictReport{RecordsScanned: 2},
	}
	text, err := Template{}.Narrate(context.Background(), collab.NarrativeRequest{Role: collab.RoleSummary, Payload: in})
	require.NoError(t, err)
	assert.Contains(t, text, "2 medical records for Jane Doe (age 55)")
	assert.Contains(t, text, "No conflicts were found")

	in.Conflicts = nil
	in.Timeline = nil
	text, err = Template{}.Narrate(context.Background(), collab.NarrativeRequest{Role: collab.RoleSummary, Payload: in})
	require.NoError(t, err)
	assert.Contains(t, text, "could not build a timeline")
	assert.Contains(t, text, "Conflict checks did not run")
}

func TestTemplate_BadPayloadIsPermanent(t *testing.T) {
	_, err := Template{}.Narrate(context.Background(), collab.NarrativeRequest{Role: collab.RoleMapping, Payload: "nope"})
	require.Error(t, err)
	assert.True(t, collab.IsPermanent(err))

	_, err = Template{}.Narrate(context.Background(), collab.NarrativeRequest{Role: "poetry"})
	assert.True(t, collab.IsPermanent(err))
}

type fakeCompleter struct {
	system, prompt string
	reply          string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.reply, nil
}

func TestClaude_UsesRoleInstruction(t *testing.T) {
	fc := &fakeCompleter{reply: "  A calm summary.\n"}
	report := types.ConflictReport{RecordsScanned: 3}

	text, err := NewClaude(fc, "m").Narrate(context.Background(), collab.NarrativeRequest{Role: collab.RoleConflict, Payload: report})
	require.NoError(t, err)

	assert.Equal(t, "A calm summary.", text)
	assert.Equal(t, collab.RoleConflict.Instruction(), fc.system)
	assert.Contains(t, fc.prompt, `"records_scanned": 3`)
}
