// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package narrative implements the narrative collaborator, which turns
// structured stage output into prose. Template is deterministic and works
// offline; Claude asks the Messages API.
package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Template writes fixed-form prose from the payload alone.
type Template struct{}

// Name identifies the backend in cache keys.
func (Template) Name() string { return types.BackendTemplate }

// Narrate implements collab.Narrator.
func (Template) Narrate(_ context.Context, req collab.NarrativeRequest) (string, error) {
	switch req.Role {
	case collab.RoleMapping:
		tl, ok := asTimeline(req.Payload)
		if !ok {
			return "", payloadError(req)
		}
		return mappingText(tl), nil
	case collab.RoleConflict:
		cr, ok := asConflicts(req.Payload)
		if !ok {
			return "", payloadError(req)
		}
		return conflictText(cr), nil
	case collab.RoleSummary:
		in, ok := asSummaryInput(req.Payload)
		if !ok {
			return "", payloadError(req)
		}
		return summaryText(in), nil
	}
	return "", collab.Permanent(fmt.Errorf("unknown narrative role %q", req.Role))
}

func payloadError(req collab.NarrativeRequest) error {
	return collab.Permanent(fmt.Errorf("role %s: unexpected payload %T", req.Role, req.Payload))
}

func asTimeline(p any) (types.Timeline, bool) {
	switch v := p.(type) {
	case types.Timeline:
		return v, true
	case *types.Timeline:
		if v != nil {
			return *v, true
		}
	}
	return types.Timeline{}, false
}

func asConflicts(p any) (types.ConflictReport, bool) {
	switch v := p.(type) {
	case types.ConflictReport:
		return v, true
	case *types.ConflictReport:
		if v != nil {
			return *v, true
		}
	}
	return types.ConflictReport{}, false
}

func asSummaryInput(p any) (collab.SummaryInput, bool) {
	switch v := p.(type) {
	case collab.SummaryInput:
		return v, true
	case *collab.SummaryInput:
		if v != nil {
			return *v, true
		}
	}
	return collab.SummaryInput{}, false
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func mappingText(tl types.Timeline) string {
	var dated int
	for _, e := range tl.Entries {
		if e.Date != "" {
			dated++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The timeline links %s across %s.", plural(len(tl.Records), "record"), plural(dated, "dated encounter"))
	for _, e := range tl.Entries {
		date := e.Date
		if date == "" {
			date = "Undated"
		}
		var sources []string
		for _, r := range e.Records {
			sources = append(sources, r.SourceID)
		}
		fmt.Fprintf(&b, "\n%s: %s", date, strings.Join(sources, ", "))
		if len(e.Clinicians) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(e.Clinicians, ", "))
		}
		b.WriteString(".")
	}
	for _, r := range tl.Relations {
		fmt.Fprintf(&b, "\n%s and %s: %s.", r.From.SourceID, r.To.SourceID, r.Detail)
	}
	return b.String()
}

func conflictText(cr types.ConflictReport) string {
	if len(cr.Findings) == 0 {
		return fmt.Sprintf("No conflicts were found across %s.", plural(cr.RecordsScanned, "record"))
	}
	var parts []string
	for _, k := range []struct {
		kind         types.ConflictKind
		one, several string
	}{
		{types.ConflictDosageMismatch, "dosage mismatch", "dosage mismatches"},
		{types.ConflictDiagnosisDiscrepancy, "lab/diagnosis discrepancy", "lab/diagnosis discrepancies"},
		{types.ConflictOther, "other conflict", "other conflicts"},
	} {
		switch n := cr.Count(k.kind); {
		case n == 1:
			parts = append(parts, "1 "+k.one)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, k.several))
		}
	}
	return fmt.Sprintf("%s found across %s: %s.",
		plural(len(cr.Findings), "conflict"), plural(cr.RecordsScanned, "record"), joinAnd(parts))
}

// joinAnd joins items as "a", "a and b", or "a, b and c".
func joinAnd(items []string) string {
	if len(items) < 2 {
		return strings.Join(items, "")
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func summaryText(in collab.SummaryInput) string {
	var b strings.Builder
	who := in.Patient.Name
	if who == "" {
		who = "the patient"
	}
	if in.Patient.Age > 0 {
		who = fmt.Sprintf("%s (age %d)", who, in.Patient.Age)
	}

	if in.Timeline != nil {
		fmt.Fprintf(&b, "This report brings together %s for %s.", plural(len(in.Timeline.Records), "medical record"), who)
	} else {
		fmt.Fprintf(&b, "This report for %s could not build a timeline from the provided records.", who)
	}

	switch {
	case in.Conflicts == nil:
		b.WriteString(" Conflict checks did not run, so nothing here confirms the records agree.")
	case len(in.Conflicts.Findings) == 0:
		b.WriteString(" No conflicts were found between the records.")
	default:
		fmt.Fprintf(&b, " %s need attention; bring the questions below to your next appointment.",
			plural(len(in.Conflicts.Findings), "possible conflict"))
	}
	b.WriteString(" This summary is not medical advice; confirm any change with your clinician.")
	return b.String()
}
