// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harmonize

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/internal/ingest"
	"github.com/pdiddy/record-harmonizer/internal/llm"
	"github.com/pdiddy/record-harmonizer/internal/narrative"
	"github.com/pdiddy/record-harmonizer/internal/pipeline"
	"github.com/pdiddy/record-harmonizer/internal/store"
	"github.com/pdiddy/record-harmonizer/internal/structure"
	"github.com/pdiddy/record-harmonizer/internal/summary"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

var sampleDocs = []struct{ name, text string }{
	{"lab_report.txt", "Raw Lab Report Text: Cholesterol 210 mg/dL (May 10, 2024, Dr. Smith). Glucose 115 mg/dL."},
	{"doctor_note.txt", "Raw Doctor Note Text: Patient presents with high BP. Prescribed Atenolol 25mg daily. Diagnosis: Hypertension."},
	{"followup.txt", "Clinical note 2024-06-01, Dr. Smith. Atenolol 50mg daily."},
}

var jane = types.UserProfile{Name: "Jane Doe", Age: 55}

func writeDocs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, d := range sampleDocs {
		p := filepath.Join(dir, d.name)
		require.NoError(t, os.WriteFile(p, []byte(d.text), 0o644))
		paths = append(paths, p)
	}
	return paths
}

var fastPolicy = collab.Policy{Timeout: 5 * time.Second, Retries: 1, Backoff: time.Millisecond}

func offline() Collaborators {
	return Collaborators{Extractor: ingest.NewExtractor(), Structurer: structure.Rules{}, Narrator: narrative.Template{}}
}

func newTestHarmonizer(c Collaborators, opts ...Option) *Harmonizer {
	return New(Wrap(c, fastPolicy, nil, nil), types.DefaultConfig(), opts...)
}

func TestRun_SampleDocuments(t *testing.T) {
	out, err := newTestHarmonizer(offline()).Run(context.Background(), Request{Documents: writeDocs(t), Patient: jane})
	require.NoError(t, err)

	r := out.Report
	assert.True(t, r.Complete)
	assert.Equal(t, 3, r.RecordCount)
	require.Len(t, r.Conflicts, 2)
	assert.Equal(t, types.ConflictDiagnosisDiscrepancy, r.Conflicts[0].Kind)
	assert.Equal(t, types.ConflictDosageMismatch, r.Conflicts[1].Kind)
	assert.Equal(t, "Atenolol", r.Conflicts[1].Subject)
	assert.Len(t, r.Conflicts[1].Records, 2)

	for _, s := range out.Result.Stages {
		assert.Equal(t, pipeline.StatusOK, s.Status, s.Name)
	}
	assert.Contains(t, out.Markdown, "| Cholesterol | 210 mg/dL (High) | 2024-05-10 | Dr. Smith |")
	assert.Equal(t, summary.Markdown(r), out.Markdown)
}

func TestRun_Idempotent(t *testing.T) {
	docs := writeDocs(t)
	req := Request{Documents: docs, Patient: jane}

	first, err := newTestHarmonizer(offline()).Run(context.Background(), req)
	require.NoError(t, err)
	second, err := newTestHarmonizer(offline()).Run(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, []byte(first.Markdown), []byte(second.Markdown))
	assert.Equal(t, first.Report, second.Report)
}

func TestRun_EmptyDocumentList(t *testing.T) {
	out, err := newTestHarmonizer(offline()).Run(context.Background(), Request{Patient: jane})
	require.NoError(t, err)

	r := out.Report
	assert.True(t, r.Complete, "soft markers do not abort the run")
	assert.Equal(t, 0, r.RecordCount)

	tl, _ := r.Section(summary.TitleTimeline)
	assert.False(t, tl.Available)
	assert.Equal(t, "standardized_records unavailable: no input documents", tl.Reason)

	cf, _ := r.Section(summary.TitleConflicts)
	assert.False(t, cf.Available)
	assert.Equal(t, "mapped_timeline unavailable: standardized_records unavailable: no input documents", cf.Reason)

	for _, name := range []string{"standardize", "relate", "conflict"} {
		sr, ok := out.Result.Stage(name)
		require.True(t, ok)
		assert.Equal(t, pipeline.StatusDegraded, sr.Status, name)
	}
}

func TestRun_FatalStandardizeFailure(t *testing.T) {
	docs := writeDocs(t)
	docs = append(docs[:1], filepath.Join(filepath.Dir(docs[0]), "blurry_scan.txt"))

	out, err := newTestHarmonizer(offline()).Run(context.Background(), Request{Documents: docs, Patient: jane})
	require.NoError(t, err)

	sr, _ := out.Result.Stage("standardize")
	assert.Equal(t, pipeline.StatusFailed, sr.Status)
	var ce *collab.Error
	require.True(t, errors.As(sr.Err, &ce))
	assert.Equal(t, 1, ce.Attempts, "a missing file is not retried")

	for _, name := range []string{"relate", "conflict"} {
		sr, _ := out.Result.Stage(name)
		assert.Equal(t, pipeline.StatusSkipped, sr.Status, name)
	}
	assert.False(t, out.Board.Has("mapped_timeline"))

	r := out.Report
	assert.False(t, r.Complete)
	require.NotNil(t, r.Failure)
	assert.Equal(t, "standardize", r.Failure.Stage)
	assert.Contains(t, r.Failure.Reason, "blurry_scan.txt")
	assert.Contains(t, out.Markdown, "The run stopped at stage `standardize`")
}

// hangingExtractor blocks until its context is done.
type hangingExtractor struct{}

func (hangingExtractor) Extract(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_TimeoutMarksReportIncomplete(t *testing.T) {
	c := offline()
	c.Extractor = hangingExtractor{}
	cfg := types.DefaultConfig()
	cfg.Pipeline.RunTimeout = 50 * time.Millisecond
	h := New(Wrap(c, fastPolicy, nil, nil), cfg)

	start := time.Now()
	out, err := h.Run(context.Background(), Request{Documents: []string{"slow.pdf"}, Patient: jane})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	r := out.Report
	assert.False(t, r.Complete)
	require.NotNil(t, r.Failure)
	assert.True(t, r.Failure.TimedOut)
	assert.Equal(t, "standardize", r.Failure.Stage)
}

func TestRun_Archive(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	h := newTestHarmonizer(offline(), WithArchive(st))
	out, err := h.Run(context.Background(), Request{ID: "run-42", Documents: writeDocs(t), Patient: jane})
	require.NoError(t, err)
	assert.Equal(t, "run-42", out.RunID)

	saved, err := st.GetRun(context.Background(), "run-42")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", saved.Patient)
	assert.True(t, saved.Complete)
	assert.Equal(t, 2, saved.Conflicts)
	assert.Len(t, saved.Documents, 3)
	assert.Equal(t, out.Markdown, saved.Markdown)
}

func TestRun_GeneratesRunID(t *testing.T) {
	out, err := newTestHarmonizer(offline()).Run(context.Background(), Request{Patient: jane})
	require.NoError(t, err)
	_, err = uuid.Parse(out.RunID)
	assert.NoError(t, err)
}

// countingStructurer counts calls that reach the backend.
type countingStructurer struct {
	inner collab.Structurer
	calls atomic.Int32
}

func (c *countingStructurer) Name() string { return "counting" }
func (c *countingStructurer) Structure(ctx context.Context, doc collab.Document) (types.Record, error) {
	c.calls.Add(1)
	return c.inner.Structure(ctx, doc)
}

func TestWrap_CacheServesRepeatRuns(t *testing.T) {
	cs := &countingStructurer{inner: structure.Rules{}}
	c := offline()
	c.Structurer = cs
	h := New(Wrap(c, fastPolicy, collab.NewMemoryCache(), nil), types.DefaultConfig())

	req := Request{Documents: writeDocs(t), Patient: jane}
	first, err := h.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := h.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(3), cs.calls.Load())
	assert.Equal(t, first.Markdown, second.Markdown)
}

func TestNewCollaborators(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(*types.Config)
		errIs  error
		errMsg string
	}{
		{name: "offline defaults", edit: func(*types.Config) {}},
		{
			name:  "claude without key",
			edit:  func(c *types.Config) { c.Structure.Backend = types.BackendClaude },
			errIs: llm.ErrNoAPIKey,
		},
		{
			name: "claude with key",
			edit: func(c *types.Config) {
				c.Narrative.Backend = types.BackendClaude
				c.Narrative.APIKey = "sk-test"
			},
		},
		{
			name:   "unknown narrative backend",
			edit:   func(c *types.Config) { c.Narrative.Backend = "poet" },
			errMsg: `unknown backend "poet"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := types.DefaultConfig()
			tt.edit(&cfg)
			c, err := NewCollaborators(context.Background(), cfg, nil, nil)
			switch {
			case tt.errIs != nil:
				assert.ErrorIs(t, err, tt.errIs)
			case tt.errMsg != "":
				assert.ErrorContains(t, err, tt.errMsg)
			default:
				require.NoError(t, err)
				assert.NotNil(t, c.Extractor)
				assert.NotNil(t, c.Structurer)
				assert.NotNil(t, c.Narrator)
			}
		})
	}
}

func TestDumpBoard(t *testing.T) {
	out, err := newTestHarmonizer(offline()).Run(context.Background(), Request{Documents: writeDocs(t), Patient: jane})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, DumpBoard(&buf, out.Board))
	for _, key := range []string{"input_documents:", "standardized_records:", "mapped_timeline:", "conflict_report:", "final_report:"} {
		assert.Contains(t, buf.String(), key)
	}
}
