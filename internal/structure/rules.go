// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

var (
	labPattern = regexp.MustCompile(
		`\b([A-Z][A-Za-z0-9]*|[a-z]+[A-Z][A-Za-z0-9]*)((?:[ \-][A-Z][A-Za-z0-9]*)?)\s*:?\s+([<>]?\d+(?:\.\d+)?)\s*(mg/dL|mmol/L|g/dL|mEq/L|ng/mL|pg/mL|mIU/L|uIU/mL|U/L|IU/L|%)`)

	medPattern = regexp.MustCompile(
		`(?i)\b([a-z][a-z\-]*(?: [a-z][a-z\-]*)?)\s+(\d+(?:\.\d+)?\s?(?:mg|mcg|g|ml|units|iu))` +
			`(?:\s+((?:once|twice|three times|four times)(?: a)? daily|daily|nightly|weekly|every \d+ hours|q\.?d\.?|b\.?i\.?d\.?|t\.?i\.?d\.?|prn|as needed))?` +
			`(?:[\s,.;)]|$)`)

	diagnosisPattern = regexp.MustCompile(`(?i)\b(?:diagnosis|diagnoses|diagnosed with|assessment|impression)\s*:?\s*([^.\n;]+)`)

	isoDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	longDatePattern = regexp.MustCompile(`\b((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.? \d{1,2},? \d{4})\b`)
	usDatePattern   = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`)

	clinicianPattern = regexp.MustCompile(`\bDr\.?\s+([A-Z][a-z'\-]+(?: [A-Z][a-z'\-]+)?)`)

	diagnosisSplit = regexp.MustCompile(`(?i)\s*(?:,|\band\b)\s*`)
)

// medVerbs are leading words dropped from a medication match.
var medVerbs = map[string]bool{
	"prescribed": true, "prescribe": true, "takes": true, "take": true, "taking": true,
	"started": true, "start": true, "continue": true, "continued": true, "on": true,
	"increase": true, "increased": true, "decrease": true, "decreased": true,
	"switch": true, "switched": true, "to": true, "of": true, "with": true, "and": true,
}

// Rules structures documents with regular expressions. It recognizes lab
// values with clinical units, medications with a dose and optional
// frequency, "Diagnosis:" lines, dates, and "Dr." names. The record type is
// hinted by the source name ("lab", "note") and otherwise inferred from
// the content.
type Rules struct{}

// Name identifies the backend in cache keys.
func (Rules) Name() string { return types.BackendRules }

// Structure implements collab.Structurer.
func (Rules) Structure(_ context.Context, doc collab.Document) (types.Record, error) {
	text := doc.Text
	rec := types.Record{
		Date:      findDate(text),
		Clinician: findClinician(text),
		Entities: types.Entities{
			LabResults:  findLabs(text),
			Medications: findMedications(text),
			Diagnoses:   findDiagnoses(text),
		},
	}
	rec.Type = classify(doc.Ref, text, rec.Entities)

	Normalize(&rec)
	if err := Validate(rec); err != nil {
		return types.Record{}, collab.Permanent(err)
	}
	return rec, nil
}

func classify(ref, text string, e types.Entities) types.RecordType {
	base := strings.ToLower(path.Base(ref))
	switch {
	case strings.Contains(base, "lab"):
		return types.RecordLabReport
	case strings.Contains(base, "note"):
		return types.RecordClinicalNote
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "lab report") || strings.Contains(lower, "laboratory"):
		return types.RecordLabReport
	case strings.Contains(lower, "doctor note") || strings.Contains(lower, "clinical note") ||
		strings.Contains(lower, "progress note") || strings.Contains(lower, "presents with"):
		return types.RecordClinicalNote
	case len(e.LabResults) > 0 && len(e.Medications) == 0 && len(e.Diagnoses) == 0:
		return types.RecordLabReport
	case len(e.Medications) > 0 || len(e.Diagnoses) > 0:
		return types.RecordClinicalNote
	}
	return types.RecordOther
}

func findDate(text string) string {
	for _, p := range []*regexp.Regexp{isoDatePattern, longDatePattern, usDatePattern} {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if d, ok := NormalizeDate(strings.Replace(m[1], ".", "", 1)); ok {
				return d
			}
			if d, ok := NormalizeDate(m[1]); ok {
				return d
			}
		}
	}
	return ""
}

func findClinician(text string) string {
	m := clinicianPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "Dr. " + m[1]
}

// labNoise are heading words that can precede a lab name ("Report Glucose").
var labNoise = map[string]bool{
	"report": true, "text": true, "result": true, "results": true,
	"panel": true, "lab": true, "labs": true, "test": true, "tests": true,
}

func findLabs(text string) []types.LabResult {
	var labs []types.LabResult
	for _, m := range labPattern.FindAllStringSubmatch(text, -1) {
		name := m[1] + m[2]
		if m[2] != "" && labNoise[strings.ToLower(m[1])] {
			name = strings.TrimLeft(m[2], " -")
		}
		labs = append(labs, types.LabResult{
			Name:  name,
			Value: types.LabValue(m[3]),
			Unit:  m[4],
		})
	}
	return labs
}

func findMedications(text string) []types.Medication {
	var meds []types.Medication
	for _, m := range medPattern.FindAllStringSubmatch(text, -1) {
		name := medName(m[1])
		if name == "" {
			continue
		}
		meds = append(meds, types.Medication{
			Name:      name,
			Dosage:    strings.ReplaceAll(m[2], " ", ""),
			Frequency: strings.ToLower(m[3]),
		})
	}
	return meds
}

// medName drops leading verbs and capitalizes the drug name.
func medName(raw string) string {
	words := strings.Fields(raw)
	for len(words) > 0 && medVerbs[strings.ToLower(words[0])] {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	name := strings.Join(words, " ")
	return strings.ToUpper(name[:1]) + name[1:]
}

func findDiagnoses(text string) []string {
	var out []string
	for _, m := range diagnosisPattern.FindAllStringSubmatch(text, -1) {
		for _, d := range diagnosisSplit.Split(m[1], -1) {
			if d = strings.TrimSpace(d); d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}
