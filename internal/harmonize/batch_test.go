// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harmonize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

func TestRunBatch_KeepsRequestOrder(t *testing.T) {
	docs := writeDocs(t)
	reqs := []Request{
		{Documents: docs, Patient: types.UserProfile{Name: "Ann"}},
		{Patient: types.UserProfile{Name: "Bob"}},
		{Documents: []string{filepath.Join(t.TempDir(), "gone.txt")}, Patient: types.UserProfile{Name: "Cy"}},
		{Documents: docs[1:], Patient: types.UserProfile{Name: "Dee"}},
	}

	outs, err := newTestHarmonizer(offline()).RunBatch(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, outs, len(reqs))

	ids := map[string]bool{}
	for i, out := range outs {
		assert.Equal(t, reqs[i].Patient.Name, out.Report.Patient.Name)
		ids[out.RunID] = true
	}
	assert.Len(t, ids, len(reqs), "every run gets its own ID")

	assert.True(t, outs[0].Report.Complete)
	assert.Len(t, outs[0].Report.Conflicts, 2)
	assert.True(t, outs[1].Report.Complete)
	assert.False(t, outs[2].Report.Complete)
	assert.Equal(t, "standardize", outs[2].Report.Failure.Stage)
	assert.Len(t, outs[3].Report.Conflicts, 1)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`patients:
  - id: jane-2024
    name: Jane Doe
    age: 55
    documents:
      - records/lab_report.pdf
      - s3://clinic-uploads/jane/doctor_note.jpg
      - /srv/scans/followup.png
  - name: John Roe
    documents: []
`), 0o644))

	reqs, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "jane-2024", reqs[0].ID)
	assert.Equal(t, types.UserProfile{Name: "Jane Doe", Age: 55}, reqs[0].Patient)
	assert.Equal(t, []string{
		filepath.Join(dir, "records", "lab_report.pdf"),
		"s3://clinic-uploads/jane/doctor_note.jpg",
		"/srv/scans/followup.png",
	}, reqs[0].Documents)

	assert.Equal(t, "", reqs[1].ID)
	assert.Empty(t, reqs[1].Documents)
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "no patients", content: "patients: []\n", errMsg: "lists no patients"},
		{name: "missing name", content: "patients:\n  - documents: [a.txt]\n", errMsg: "patient 1 has no name"},
		{name: "bad yaml", content: "patients: [\n", errMsg: "parsing manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "m.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadManifest(path)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}

	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading manifest")
}
