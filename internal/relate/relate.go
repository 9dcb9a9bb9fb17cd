// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relate implements the relation mapping stage. It groups the
// standardized records into a chronological timeline, links record pairs
// that share a date, a clinician, or a clinical entity, and asks the
// narrative collaborator to describe the result.
package relate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Name is the stage name.
const Name = "relate"

// Stage reads blackboard.KeyRecords and writes blackboard.KeyTimeline and
// blackboard.KeyNarrative.
type Stage struct {
	narrator collab.Narrator
	log      *zap.Logger
}

// New returns the stage.
func New(n collab.Narrator, log *zap.Logger) *Stage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stage{narrator: n, log: log}
}

func (s *Stage) Name() string { return Name }

func (s *Stage) Outputs() []string {
	return []string{blackboard.KeyTimeline, blackboard.KeyNarrative}
}

func (s *Stage) Run(ctx context.Context, b *blackboard.Board) error {
	records, err := blackboard.Fetch[[]types.Record](b, blackboard.KeyRecords)
	var m *blackboard.Marker
	switch {
	case err != nil:
		m = blackboard.MarkerFor(Name, blackboard.KeyRecords, err)
	case len(records) == 0:
		m = blackboard.NoInput(Name, "no standardized records")
	}
	if m != nil {
		b.Set(blackboard.KeyTimeline, m)
		b.Set(blackboard.KeyNarrative, m)
		return nil
	}

	tl := Build(records)
	text, err := s.narrator.Narrate(ctx, collab.NarrativeRequest{Role: collab.RoleMapping, Payload: tl})
	if err != nil {
		return fmt.Errorf("describing timeline: %w", err)
	}

	s.log.Debug("relate: timeline built",
		zap.Int("records", len(tl.Records)),
		zap.Int("entries", len(tl.Entries)),
		zap.Int("relations", len(tl.Relations)),
	)
	b.Set(blackboard.KeyTimeline, tl)
	b.Set(blackboard.KeyNarrative, text)
	return nil
}

// Build groups records by date and links related pairs. Entries are in
// ascending date order with undated records last; records within an entry
// and relations keep record order.
func Build(records []types.Record) types.Timeline {
	tl := types.Timeline{
		Records:   append([]types.Record(nil), records...),
		Entries:   []types.TimelineEntry{},
		Relations: []types.Relation{},
	}

	byDate := map[string]int{}
	for _, rec := range records {
		i, ok := byDate[rec.Date]
		if !ok {
			i = len(tl.Entries)
			byDate[rec.Date] = i
			tl.Entries = append(tl.Entries, types.TimelineEntry{
				Date:        rec.Date,
				Records:     []types.RecordRef{},
				Clinicians:  []string{},
				Diagnoses:   []string{},
				Medications: []types.Medication{},
				LabResults:  []types.LabResult{},
			})
		}
		e := &tl.Entries[i]
		e.Records = append(e.Records, rec.Ref())
		if rec.Clinician != "" {
			e.Clinicians = appendUnique(e.Clinicians, rec.Clinician)
		}
		for _, d := range rec.Entities.Diagnoses {
			e.Diagnoses = appendUnique(e.Diagnoses, d)
		}
		e.Medications = append(e.Medications, rec.Entities.Medications...)
		e.LabResults = append(e.LabResults, rec.Entities.LabResults...)
	}
	sort.SliceStable(tl.Entries, func(i, j int) bool {
		a, b := tl.Entries[i].Date, tl.Entries[j].Date
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	for i := range records {
		for j := i + 1; j < len(records); j++ {
			tl.Relations = append(tl.Relations, relations(records[i], records[j])...)
		}
	}
	return tl
}

func relations(a, b types.Record) []types.Relation {
	var out []types.Relation
	link := func(kind types.RelationKind, detail string) {
		out = append(out, types.Relation{Kind: kind, From: a.Ref(), To: b.Ref(), Detail: detail})
	}

	if a.Date != "" && a.Date == b.Date {
		link(types.RelationSameDate, "both dated "+a.Date)
	}
	if a.Clinician != "" && strings.EqualFold(a.Clinician, b.Clinician) {
		link(types.RelationSameClinician, "both by "+a.Clinician)
	}
	if shared := sharedEntities(a.Entities, b.Entities); len(shared) > 0 {
		link(types.RelationSharedEntity, "both mention "+strings.Join(shared, ", "))
	}
	return out
}

// sharedEntities returns entity names present in both records, in the
// order they appear in a: diagnoses, then medications, then lab tests.
func sharedEntities(a, b types.Entities) []string {
	inB := map[string]bool{}
	for _, n := range entityNames(b) {
		inB[strings.ToLower(n)] = true
	}
	var shared []string
	for _, n := range entityNames(a) {
		if inB[strings.ToLower(n)] {
			shared = appendUnique(shared, n)
		}
	}
	return shared
}

func entityNames(e types.Entities) []string {
	var names []string
	names = append(names, e.Diagnoses...)
	for _, m := range e.Medications {
		names = append(names, m.Name)
	}
	for _, l := range e.LabResults {
		names = append(names, l.Name)
	}
	return names
}

// appendUnique appends s unless an equal string (ignoring case) is present.
func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return list
		}
	}
	return append(list, s)
}
