// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package conflict implements the conflict detection stage. It scans the
// records of the mapped timeline for medications recorded with different
// doses and for lab values past a clinical threshold that no diagnosis
// accounts for.
package conflict

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Name is the stage name.
const Name = "conflict"

// Stage reads blackboard.KeyTimeline and writes blackboard.KeyConflicts.
type Stage struct {
	narrator   collab.Narrator
	thresholds []types.LabThreshold
	log        *zap.Logger
}

// New returns the stage. A nil thresholds slice uses
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
func (s *Stage) Outputs() []string { return []string{blackboard.KeyConflicts} }

// Run scans the timeline's records. A report with no findings is written
// as-is; only a missing or marked timeline produces a marker.
func (s *Stage) Run(ctx context.Context, b *blackboard.Board) error {
	tl, err := blackboard.Fetch[types.Timeline](b, blackboard.KeyTimeline)
	if err != nil {
		b.Set(blackboard.KeyConflicts, blackboard.MarkerFor(Name, blackboard.KeyTimeline, err))
		return nil
	}

	report := types.ConflictReport{
		Findings:       Scan(tl.Records, s.thresholds),
		RecordsScanned: len(tl.Records),
	}
	text, err := s.narrator.Narrate(ctx, collab.NarrativeRequest{Role: collab.RoleConflict, Payload: report})
	if err != nil {
		return fmt.Errorf("describing conflicts: %w", err)
	}
	report.Narrative = text

	s.log.Debug("conflict: scan complete",
		zap.Int("records", report.RecordsScanned),
		zap.Int("dosage_mismatches", report.Count(types.ConflictDosageMismatch)),
		zap.Int("discrepancies", report.Count(types.ConflictDiagnosisDiscrepancy)),
	)
	b.Set(blackboard.KeyConflicts, report)
	return nil
}

// Scan returns the findings for records. For each record i in order it
// emits the dosage mismatches between i and every later record, then the
// lab/diagnosis discrepancies of record i. Nil thresholds means
// types.DefaultThresholds. The result is never nil.
func Scan(records []types.Record, thresholds []types.LabThreshold) []types.Conflict {
	findings := []types.Conflict{}
	diagnoses := allDiagnoses(records)

	for i, a := range records {
		for j := i + 1; j < len(records); j++ {
			findings = append(findings, dosageMismatches(a, records[j])...)
		}
		findings = append(findings, discrepancies(a, thresholds, diagnoses)...)
	}
	return findings
}

// dosageMismatches compares every medication of a against the same
// medication in b. Each medication name yields at most one finding per pair.
func dosageMismatches(a, b types.Record) []types.Conflict {
	var out []types.Conflict
	seen := map[string]bool{}
	for _, ma := range a.Entities.Medications {
		key := strings.ToLower(strings.TrimSpace(ma.Name))
		if key == "" || seen[key] {
			continue
		}
		for _, mb := range b.Entities.Medications {
			if !strings.EqualFold(strings.TrimSpace(mb.Name), ma.Name) || !differs(ma, mb) {
				continue
			}
			seen[key] = true
			da, db := doseText(ma), doseText(mb)
			out = append(out, types.Conflict{
				Kind:    types.ConflictDosageMismatch,
				Subject: ma.Name,
				Records: []types.RecordRef{a.Ref(), b.Ref()},
				Explanation: fmt.Sprintf("%s is recorded as %s in %s but %s in %s.",
					ma.Name, da, a.Ref().Label(), db, b.Ref().Label()),
				Question: fmt.Sprintf("Which %s dose should I be taking: %s or %s?", ma.Name, da, db),
			})
			break
		}
	}
	return out
}

// differs reports whether two entries for the same drug disagree. A field
// missing on either side is not a disagreement.
func differs(a, b types.Medication) bool {
	da, db := normDosage(a.Dosage), normDosage(b.Dosage)
	if da != "" && db != "" && da != db {
		return true
	}
	fa, fb := normFrequency(a.Frequency), normFrequency(b.Frequency)
	return fa != "" && fb != "" && fa != fb
}

func normDosage(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func normFrequency(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func doseText(m types.Medication) string {
	s := strings.TrimSpace(m.Dosage + " " + m.Frequency)
	if s == "" {
		return "no dose"
	}
	return s
}

// discrepancies flags the labs of rec that cross a threshold while no
// record carries one of the threshold's diagnoses.
func discrepancies(rec types.Record, thresholds []types.LabThreshold, diagnoses []string) []types.Conflict {
	var out []types.Conflict
	seen := map[string]bool{}
	for _, lab := range rec.Entities.LabResults {
		th, ok := MatchThreshold(thresholds, lab.Name)
		if !ok || seen[strings.ToLower(th.Test)] {
			continue
		}
		v, ok := lab.Value.Float()
		if !ok || !th.Crossed(v) || diagnosed(diagnoses, th.Diagnoses) {
			continue
		}
		seen[strings.ToLower(th.Test)] = true

		value := strings.TrimSpace(string(lab.Value) + " " + lab.Unit)
		limit := strings.TrimSpace(fmt.Sprintf("%g %s", th.Limit, th.Unit))
		out = append(out, types.Conflict{
			Kind:    types.ConflictDiagnosisDiscrepancy,
			Subject: lab.Name,
			Records: []types.RecordRef{rec.Ref()},
			Explanation: fmt.Sprintf("%s is %s in %s, %s the %s threshold, but no record lists a related diagnosis (%s).",
				lab.Name, value, rec.Ref().Label(), th.Direction, limit, strings.Join(th.Diagnoses, ", ")),
			Question: fmt.Sprintf("Does my %s of %s need a diagnosis or treatment?", lab.Name, value),
		})
	}
	return out
}

func allDiagnoses(records []types.Record) []string {
	var out []string
	for _, r := range records {
		for _, d := range r.Entities.Diagnoses {
			out = append(out, strings.ToLower(d))
		}
	}
	return out
}

func diagnosed(diagnoses, accepted []string) bool {
	for _, d := range diagnoses {
		for _, a := range accepted {
			if a != "" && strings.Contains(d, strings.ToLower(a)) {
				return true
			}
		}
	}
	return false
}
