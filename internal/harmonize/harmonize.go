// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harmonize assembles the four-stage pipeline from configuration
// and runs it for one patient or a batch of patients.
package harmonize

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/internal/conflict"
	"github.com/pdiddy/record-harmonizer/internal/pipeline"
	"github.com/pdiddy/record-harmonizer/internal/relate"
	"github.com/pdiddy/record-harmonizer/internal/standardize"
	"github.com/pdiddy/record-harmonizer/internal/store"
	"github.com/pdiddy/record-harmonizer/internal/summary"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Request is one patient's run.
type Request struct {
	// ID identifies the run in logs and the archive. Empty means a new
	// random ID.
	ID        string
	Documents []string
	Patient   types.UserProfile
}

// Outcome is the result of one run.
type Outcome struct {
	RunID    string
	Report   types.FinalReport
	Markdown string
	Result   pipeline.Result
	Board    *blackboard.Board
}

// Archive persists finished runs. *store.Store implements it.
type Archive interface {
	SaveRun(ctx context.Context, r store.Run) error
}

// Option configures a Harmonizer.
type Option func(*Harmonizer)

// WithArchive saves every run to a.
func WithArchive(a Archive) Option {
	return func(h *Harmonizer) { h.archive = a }
}

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(h *Harmonizer) { h.log = l }
}

// Harmonizer runs the pipeline. One Harmonizer serves any number of
// concurrent runs; each run gets its own board.
type Harmonizer struct {
	collabs Collaborators
	cfg     types.Config
	archive Archive
	log     *zap.Logger
}

// New returns a Harmonizer that uses c for every run.
func New(c Collaborators, cfg types.Config, opts ...Option) *Harmonizer {
	h := &Harmonizer{collabs: c, cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Stages returns the regular stages in order and the finalizer.
func (h *Harmonizer) Stages(log *zap.Logger) ([]pipeline.Stage, pipeline.Stage) {
	th := h.cfg.Conflict.Thresholds
	return []pipeline.Stage{
		standardize.New(h.collabs.Extractor, h.collabs.Structurer, log),
		relate.New(h.collabs.Narrator, log),
		conflict.New(h.collabs.Narrator, th, log),
	}, summary.New(h.collabs.Narrator, th, log)
}

// Run executes the pipeline for req. Stage failures do not produce an
// error; they are reported in the Outcome's report. An error means no
// report could be produced at all.
func (h *Harmonizer) Run(ctx context.Context, req Request) (Outcome, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := h.log.With(zap.String("run_id", id))

	docs := append([]string{}, req.Documents...)
	board := blackboard.New(map[string]any{
		blackboard.KeyDocuments: docs,
		blackboard.KeyProfile:   req.Patient,
	})

	stages, final := h.Stages(log)
	runner := pipeline.New(stages,
		pipeline.WithPolicy(h.cfg.Pipeline.Policy),
		pipeline.WithTimeout(h.cfg.Pipeline.RunTimeout),
		pipeline.WithFinalizer(final, h.cfg.Pipeline.FinalizerTimeout),
		pipeline.WithLogger(log),
	)

	log.Info("harmonize: run starting", zap.Int("documents", len(docs)))
	result := runner.Run(ctx, board)

	report, err := blackboard.Fetch[types.FinalReport](board, blackboard.KeyReport)
	if err != nil {
		return Outcome{RunID: id, Result: result, Board: board}, fmt.Errorf("run %s produced no report: %w", id, err)
	}
	out := Outcome{
		RunID:    id,
		Report:   report,
		Markdown: summary.Markdown(report),
		Result:   result,
		Board:    board,
	}

	fields := []zap.Field{zap.Bool("complete", report.Complete), zap.Int("conflicts", len(report.Conflicts))}
	if report.Failure != nil {
		fields = append(fields, zap.String("failed_stage", report.Failure.Stage))
	}
	log.Info("harmonize: run finished", fields...)

	if h.archive != nil {
		if err := h.archive.SaveRun(ctx, archived(out, docs)); err != nil {
			log.Warn("harmonize: archiving run failed", zap.Error(err))
		}
	}
	return out, nil
}

func archived(o Outcome, docs []string) store.Run {
	r := store.Run{
		ID:        o.RunID,
		Patient:   o.Report.Patient.Name,
		Documents: docs,
		Complete:  o.Report.Complete,
		Conflicts: len(o.Report.Conflicts),
		Report:    o.Report,
		Markdown:  o.Markdown,
		CreatedAt: time.Now(),
	}
	if o.Report.Failure != nil {
		r.FailedStage = o.Report.Failure.Stage
	}
	return r
}

// DumpBoard writes every key of b as YAML.
func DumpBoard(w io.Writer, b *blackboard.Board) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b.Snapshot()); err != nil {
		return fmt.Errorf("encoding board: %w", err)
	}
	return enc.Close()
}
