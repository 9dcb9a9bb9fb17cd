// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structure implements the structuring collaborator: turning the
// raw text of one document into a types.Record. Rules is a deterministic
// pattern-based engine that needs no network; Claude asks the Messages API
// for JSON following the record schema. Both outputs pass through
// Normalize and Validate.
package structure

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// dateLayouts are the input layouts NormalizeDate accepts.
var dateLayouts = []string{
	types.DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// NormalizeDate converts a date in one of the common layouts to
// YYYY-MM-DD. Unknown input yields "" and false.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(types.DateLayout), true
		}
	}
	return "", false
}

var spaceRun = regexp.MustCompile(`\s+`)

func squash(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Normalize tidies a structured record in place: whitespace is collapsed,
// the date is converted to YYYY-MM-DD when recognizable, empty entity
// entries are dropped, duplicate diagnoses are removed, and an empty type
// becomes OTHER. Entity slices are never nil afterwards.
func Normalize(rec *types.Record) {
	rec.Type = types.RecordType(strings.ToUpper(strings.TrimSpace(string(rec.Type))))
	if rec.Type == "" {
		rec.Type = types.RecordOther
	}
	if d, ok := NormalizeDate(rec.Date); ok {
		rec.Date = d
	}
	rec.Clinician = squash(rec.Clinician)

	labs := make([]types.LabResult, 0, len(rec.Entities.LabResults))
	for _, l := range rec.Entities.LabResults {
		l.Name = squash(l.Name)
		l.Value = types.LabValue(squash(string(l.Value)))
		l.Unit = squash(l.Unit)
		if l.Name == "" && l.Value == "" {
			continue
		}
		labs = append(labs, l)
	}
	rec.Entities.LabResults = labs

	meds := make([]types.Medication, 0, len(rec.Entities.Medications))
	for _, m := range rec.Entities.Medications {
		m.Name = squash(m.Name)
		m.Dosage = squash(m.Dosage)
		m.Frequency = squash(m.Frequency)
		if m.Name == "" && m.Dosage == "" {
			continue
		}
		meds = append(meds, m)
	}
	rec.Entities.Medications = meds

	diags := make([]string, 0, len(rec.Entities.Diagnoses))
	seen := map[string]bool{}
	for _, d := range rec.Entities.Diagnoses {
		d = squash(d)
		k := strings.ToLower(d)
		if d == "" || seen[k] {
			continue
		}
		seen[k] = true
		diags = append(diags, d)
	}
	rec.Entities.Diagnoses = diags
}

// Validate checks a normalized record against the target schema.
func Validate(rec types.Record) error {
	var problems []string
	if !rec.Type.Valid() {
		problems = append(problems, fmt.Sprintf("record_type %q is not one of LAB_REPORT, CLINICAL_NOTE, OTHER", rec.Type))
	}
	if rec.Date != "" {
		if _, err := time.Parse(types.DateLayout, rec.Date); err != nil {
			problems = append(problems, fmt.Sprintf("date %q is not YYYY-MM-DD", rec.Date))
		}
	}
	for i, l := range rec.Entities.LabResults {
		if l.Name == "" {
			problems = append(problems, fmt.Sprintf("lab_results[%d]: missing name", i))
		}
		if l.Value == "" {
			problems = append(problems, fmt.Sprintf("lab_results[%d]: missing value", i))
		}
	}
	for i, m := range rec.Entities.Medications {
		if m.Name == "" {
			problems = append(problems, fmt.Sprintf("medications[%d]: missing name", i))
		}
	}
	if len(problems) > 0 {
		return &collab.SchemaError{Problems: problems}
	}
	return nil
}
