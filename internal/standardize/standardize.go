// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package standardize implements the first pipeline stage: every input
// document is extracted to text and structured into a types.Record.
package standardize

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Name is the stage name.
const Name = "standardize"

// Stage reads blackboard.KeyDocuments and writes blackboard.KeyRecords.
type Stage struct {
	extractor  collab.Extractor
	structurer collab.Structurer
	log        *zap.Logger
}

// New returns the stage.
func New(e collab.Extractor, s collab.Structurer, log *zap.Logger) *Stage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stage{extractor: e, structurer: s, log: log}
}

func (s *Stage) Name() string      { return Name }
func (s *Stage) Outputs() []string { return []string{blackboard.KeyRecords} }

// Run structures the documents in input order. A missing or empty document
// list leaves a no-input marker; a collaborator failure is fatal.
func (s *Stage) Run(ctx context.Context, b *blackboard.Board) error {
	refs, err := blackboard.Fetch[[]string](b, blackboard.KeyDocuments)
	if err != nil {
		b.Set(blackboard.KeyRecords, blackboard.MarkerFor(Name, blackboard.KeyDocuments, err))
		return nil
	}
	if len(refs) == 0 {
		b.Set(blackboard.KeyRecords, blackboard.NoInput(Name, "no input documents"))
		return nil
	}

	records := make([]types.Record, 0, len(refs))
	for i, ref := range refs {
		text, err := s.extractor.Extract(ctx, ref)
		if err != nil {
			return fmt.Errorf("document %d (%s): %w", i+1, ref, err)
		}

		rec, err := s.structurer.Structure(ctx, collab.Document{Ref: ref, Text: text})
		if err != nil {
			return fmt.Errorf("document %d (%s): %w", i+1, ref, err)
		}
		rec.ID = stableID(ref, text)
		rec.SourceID = ref

		s.log.Debug("standardize: record structured",
			zap.String("ref", ref),
			zap.String("id", rec.ID),
			zap.String("type", string(rec.Type)),
			zap.Int("labs", len(rec.Entities.LabResults)),
			zap.Int("medications", len(rec.Entities.Medications)),
			zap.Int("diagnoses", len(rec.Entities.Diagnoses)),
		)
		records = append(records, rec)
	}

	b.Set(blackboard.KeyRecords, records)
	return nil
}

// stableID is the first 12 hex characters of SHA-256(ref + text).
func stableID(ref, text string) string {
	h := sha256.New()
	h.Write([]byte(ref))
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}
