// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summary implements the final pipeline stage. It assembles the
// FinalReport from whatever the earlier stages left on the board and runs
// as the runner's finalizer, so it also reports on aborted runs.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/internal/conflict"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Name is the stage name.
const Name = "summary"

// Section titles, in report order.
const (
	TitleOverview     = "Overview"
	TitleTimeline     = "Timeline Summary"
	TitleConsistent   = "Consistent Findings"
	TitleMeasurements = "Key Measurements"
	TitleConflicts    = "Flagged Conflicts"
	TitleQuestions    = "Questions for Your Clinicians"
)

// ReportTitle heads every report.
const ReportTitle = "Harmonized Medical Summary Report"

// Stage reads the timeline, relational summary, conflict report, user
// profile, and run failure, and writes blackboard.KeyReport.
type Stage struct {
	narrator   collab.Narrator
	thresholds []types.LabThreshold
	log        *zap.Logger
}

// New returns the stage. Thresholds flag key measurements; nil uses
// types.DefaultThresholds.
func New(n collab.Narrator, thresholds []types.LabThreshold, log *zap.Logger) *Stage {
	if thresholds == nil {
		thresholds = types.DefaultThresholds()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Stage{narrator: n, thresholds: thresholds, log: log}
}

func (s *Stage) Name() string      { return Name }
func (s *Stage) Outputs() []string { return []string{blackboard.KeyReport} }

// inputs is what the stage could read from the board. A nil pointer means
// the input is unavailable and the matching reason says why.
type inputs struct {
	profile   types.UserProfile
	failure   *types.RunFailure
	records   []types.Record
	timeline  *types.Timeline
	tlReason  string
	narrative string
	narReason string
	conflicts *types.ConflictReport
	crReason  string
}

func (s *Stage) read(b *blackboard.Board) inputs {
	var in inputs
	in.profile, _ = blackboard.Fetch[types.UserProfile](b, blackboard.KeyProfile)
	if f, err := blackboard.Fetch[types.RunFailure](b, blackboard.KeyRunFailure); err == nil {
		in.failure = &f
	}

	if tl, err := blackboard.Fetch[types.Timeline](b, blackboard.KeyTimeline); err == nil {
		in.timeline = &tl
		in.records = tl.Records
	} else {
		in.tlReason = in.reason(blackboard.KeyTimeline, err)
		in.records, _ = blackboard.Fetch[[]types.Record](b, blackboard.KeyRecords)
	}
	if text, err := blackboard.Fetch[string](b, blackboard.KeyNarrative); err == nil {
		in.narrative = text
	} else {
		in.narReason = in.reason(blackboard.KeyNarrative, err)
	}
	if cr, err := blackboard.Fetch[types.ConflictReport](b, blackboard.KeyConflicts); err == nil {
		in.conflicts = &cr
	} else {
		in.crReason = in.reason(blackboard.KeyConflicts, err)
	}
	return in
}

// reason explains why key could not be read. A key that is simply absent
// after an aborted run is attributed to the abort.
func (in inputs) reason(key string, err error) string {
	var m *blackboard.Marker
	switch {
	case errors.As(err, &m):
		return m.Reason
	case errors.Is(err, blackboard.ErrMissing) && in.failure != nil:
		return "not produced: run stopped at stage " + in.failure.Stage
	}
	return blackboard.MarkerFor(Name, key, err).Reason
}

// Run always writes a report. A narrator failure leaves the overview
// unavailable, marks the report incomplete, and is returned.
func (s *Stage) Run(ctx context.Context, b *blackboard.Board) error {
	in := s.read(b)

	report := types.FinalReport{
		Title:        ReportTitle,
		Patient:      in.profile,
		RecordCount:  len(in.records),
		Complete:     in.failure == nil,
		Failure:      in.failure,
		Measurements: []types.Measurement{},
		Conflicts:    []types.Conflict{},
	}
	if in.timeline != nil {
		report.Measurements = s.measurements(in.timeline.Records)
	}
	if in.conflicts != nil {
		report.Conflicts = in.conflicts.Findings
	}

	overview, narrErr := s.narrator.Narrate(ctx, collab.NarrativeRequest{
		Role: collab.RoleSummary,
		Payload: collab.SummaryInput{
			Patient:   in.profile,
			Timeline:  in.timeline,
			Narrative: in.narrative,
			Conflicts: in.conflicts,
		},
	})
	overviewSec := prose(TitleOverview, overview)
	if narrErr != nil {
		narrErr = fmt.Errorf("writing overview: %w", narrErr)
		overviewSec = unavailable(TitleOverview, narrErr.Error())
		report.Complete = false
		if report.Failure == nil {
			report.Failure = &types.RunFailure{
				Stage:    Name,
				Reason:   narrErr.Error(),
				TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
			}
		}
	}

	report.Sections = []types.Section{
		overviewSec,
		timelineSection(in),
		consistentSection(in),
		measurementSection(in, report.Measurements),
		conflictSection(in),
		questionSection(in),
	}

	s.log.Debug("summary: report assembled",
		zap.Bool("complete", report.Complete),
		zap.Int("records", report.RecordCount),
		zap.Int("conflicts", len(report.Conflicts)),
	)
	b.Set(blackboard.KeyReport, report)
	return narrErr
}

func prose(title, text string) types.Section {
	return types.Section{Title: title, Available: true, Prose: true, Lines: paragraphs(text)}
}

func list(title string, lines []string) types.Section {
	return types.Section{Title: title, Available: true, Lines: lines}
}

func unavailable(title, reason string) types.Section {
	return types.Section{Title: title, Reason: reason}
}

func paragraphs(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func timelineSection(in inputs) types.Section {
	switch {
	case in.timeline == nil:
		return unavailable(TitleTimeline, in.tlReason)
	case in.narReason != "":
		return unavailable(TitleTimeline, in.narReason)
	}
	return prose(TitleTimeline, in.narrative)
}

// consistentSection lists what the records agree on. It needs the conflict
// report, since a medication is only consistent when no finding names it.
func consistentSection(in inputs) types.Section {
	switch {
	case in.timeline == nil:
		return unavailable(TitleConsistent, in.tlReason)
	case in.conflicts == nil:
		return unavailable(TitleConsistent, in.crReason)
	}

	disputed := map[string]bool{}
	for _, f := range in.conflicts.Findings {
		disputed[strings.ToLower(f.Subject)] = true
	}

	var lines []string
	for _, g := range groupDiagnoses(in.timeline.Records) {
		lines = append(lines, fmt.Sprintf("Diagnosis: %s (%s).", g.name, strings.Join(g.sources, ", ")))
	}
	for _, g := range groupMedications(in.timeline.Records) {
		if disputed[g.key] {
			continue
		}
		lines = append(lines, fmt.Sprintf("Medication: %s (%s).", g.name, strings.Join(g.sources, ", ")))
	}
	if len(lines) == 0 {
		lines = []string{"The records contain no diagnoses or undisputed medications."}
	}
	return list(TitleConsistent, lines)
}

// group is one entity with the records that mention it. key is the
// lowercased entity name.
type group struct {
	key     string
	name    string
	sources []string
}

func groupDiagnoses(records []types.Record) []group {
	var out []group
	idx := map[string]int{}
	for _, r := range records {
		for _, d := range r.Entities.Diagnoses {
			out = addSource(out, idx, d, d, r.SourceID)
		}
	}
	return out
}

func groupMedications(records []types.Record) []group {
	var out []group
	idx := map[string]int{}
	for _, r := range records {
		for _, m := range r.Entities.Medications {
			label := strings.Join(strings.Fields(m.Name+" "+m.Dosage+" "+m.Frequency), " ")
			out = addSource(out, idx, m.Name, label, r.SourceID)
		}
	}
	return out
}

func addSource(groups []group, idx map[string]int, key, label, source string) []group {
	key = strings.ToLower(key)
	i, ok := idx[key]
	if !ok {
		idx[key] = len(groups)
		return append(groups, group{key: key, name: label, sources: []string{source}})
	}
	for _, s := range groups[i].sources {
		if s == source {
			return groups
		}
	}
	groups[i].sources = append(groups[i].sources, source)
	return groups
}

func (s *Stage) measurements(records []types.Record) []types.Measurement {
	out := []types.Measurement{}
	for _, r := range records {
		for _, lab := range r.Entities.LabResults {
			out = append(out, types.Measurement{
				Test:      lab.Name,
				Value:     string(lab.Value),
				Unit:      lab.Unit,
				Date:      r.Date,
				Clinician: r.Clinician,
				Source:    r.SourceID,
				Flag:      conflict.Flag(s.thresholds, lab),
			})
		}
	}
	return out
}

func measurementSection(in inputs, ms []types.Measurement) types.Section {
	if in.timeline == nil {
		return unavailable(TitleMeasurements, in.tlReason)
	}
	if len(ms) == 0 {
		return list(TitleMeasurements, []string{"No lab measurements were found in the records."})
	}
	lines := make([]string, 0, len(ms))
	for _, m := range ms {
		lines = append(lines, measurementLine(m))
	}
	return list(TitleMeasurements, lines)
}

func measurementLine(m types.Measurement) string {
	line := strings.TrimSpace(m.Test + ": " + m.Value + " " + m.Unit)
	if m.Flag != "" {
		line += " (" + m.Flag + ")"
	}
	var ctx []string
	for _, v := range []string{m.Date, m.Clinician, m.Source} {
		if v != "" {
			ctx = append(ctx, v)
		}
	}
	if len(ctx) > 0 {
		line += ", " + strings.Join(ctx, ", ")
	}
	return line
}

func conflictSection(in inputs) types.Section {
	if in.conflicts == nil {
		return unavailable(TitleConflicts, in.crReason)
	}
	cr := in.conflicts
	if len(cr.Findings) == 0 {
		line := strings.TrimSpace(cr.Narrative)
		if line == "" {
			line = "No conflicts were found across the records."
		}
		return list(TitleConflicts, []string{line})
	}
	var lines []string
	if n := strings.TrimSpace(cr.Narrative); n != "" {
		lines = append(lines, n)
	}
	for _, f := range cr.Findings {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", f.Kind.Title(), f.Subject, f.Explanation))
	}
	lines = append(lines, "Review these conflicts with your clinician before changing any medication.")
	return list(TitleConflicts, lines)
}

func questionSection(in inputs) types.Section {
	if in.conflicts == nil {
		return unavailable(TitleQuestions, in.crReason)
	}
	var lines []string
	seen := map[string]bool{}
	for _, f := range in.conflicts.Findings {
		if f.Question == "" || seen[f.Question] {
			continue
		}
		seen[f.Question] = true
		lines = append(lines, f.Question)
	}
	if len(lines) == 0 {
		lines = []string{"Is my current medication list complete and up to date?"}
	}
	return list(TitleQuestions, lines)
}
