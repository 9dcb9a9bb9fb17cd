// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs an ordered list of stages against one blackboard.
//
// Stages signal soft failures by writing a blackboard.Marker to their
// outputs and returning nil; any returned error is fatal and aborts the
// remaining stages. A finalizer stage, when configured, runs after the
// regular stages no matter how they ended, so it can report on an aborted
// run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Stage is one step of the pipeline.
type Stage interface {
	// Name identifies the stage in logs, results, and failure reports.
	Name() string

	// Outputs lists the board keys the stage owns. A stage must not write
	// any other key.
	Outputs() []string

	// Run reads inputs from the board and writes outputs to it. A non-nil
	// error is fatal.
	Run(ctx context.Context, board *blackboard.Board) error
}

// Status is the outcome of one stage.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// StageResult records how one stage ended.
type StageResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   Status        `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Err      error         `json:"-" yaml:"-"`
	Markers  []string      `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// Result summarizes a run.
type Result struct {
	Stages []StageResult `json:"stages" yaml:"stages"`

	// Failure is set when the run was aborted.
	Failure *types.RunFailure `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Aborted reports whether a fatal error or timeout stopped the run.
func (r Result) Aborted() bool {
	return r.Failure != nil
}

// Stage returns the result for the named stage.
func (r Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// OwnershipError reports a stage writing a key it does not own.
type OwnershipError struct {
	Stage string
	Keys  []string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("stage %s wrote keys it does not own: %v", e.Stage, e.Keys)
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy sets the failure policy (default PolicyContinue).
func WithPolicy(p types.FailurePolicy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithTimeout bounds the whole run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithFinalizer sets a stage that always runs last. After an abort it runs
// on a context detached from the run deadline, bounded by timeout.
func WithFinalizer(s Stage, timeout time.Duration) Option {
	return func(r *Runner) {
		r.finalizer = s
		r.finalizerTimeout = timeout
	}
}

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// Runner executes stages in order.
type Runner struct {
	stages           []Stage
	policy           types.FailurePolicy
	timeout          time.Duration
	finalizer        Stage
	finalizerTimeout time.Duration
	log              *zap.Logger
}

// New creates a Runner for the given stages.
func New(stages []Stage, opts ...Option) *Runner {
	r := &Runner{
		stages: stages,
		policy: types.PolicyContinue,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// defaultFinalizerTimeout applies when WithFinalizer is given no bound.
const defaultFinalizerTimeout = 30 * time.Second

// Run executes the stages against board. It never returns an error for a
// stage failure; the failure is reported in Result and written to the board
// under blackboard.KeyRunFailure.
func (r *Runner) Run(ctx context.Context, board *blackboard.Board) Result {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var result Result
	for i, s := range r.stages {
		if result.Failure != nil {
			result.Stages = append(result.Stages, StageResult{Name: s.Name(), Status: StatusSkipped})
			continue
		}

		if err := runCtx.Err(); err != nil {
			result.Failure = r.failure(runCtx, s.Name(), err)
			result.Stages = append(result.Stages, StageResult{Name: s.Name(), Status: StatusSkipped, Err: err})
			continue
		}

		sr := r.runStage(runCtx, s, board)
		result.Stages = append(result.Stages, sr)

		switch {
		case sr.Status == StatusFailed:
			result.Failure = r.failure(runCtx, s.Name(), sr.Err)
		case sr.Status == StatusDegraded && r.policy == types.PolicyHaltOnDegraded && i < len(r.stages)-1:
			result.Failure = &types.RunFailure{
				Stage:  s.Name(),
				Reason: "halted on degraded output: " + sr.Markers[0],
			}
		}
	}

	if result.Failure != nil {
		board.Set(blackboard.KeyRunFailure, *result.Failure)
		r.log.Warn("pipeline: run aborted",
			zap.String("stage", result.Failure.Stage),
			zap.String("reason", result.Failure.Reason),
			zap.Bool("timed_out", result.Failure.TimedOut),
		)
	}

	if r.finalizer != nil {
		fctx := runCtx
		if result.Failure != nil || runCtx.Err() != nil {
			d := r.finalizerTimeout
			if d <= 0 {
				d = defaultFinalizerTimeout
			}
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), d)
			defer cancel()
		}
		sr := r.runStage(fctx, r.finalizer, board)
		result.Stages = append(result.Stages, sr)
		if sr.Status == StatusFailed && result.Failure == nil {
			result.Failure = r.failure(runCtx, r.finalizer.Name(), sr.Err)
		}
	}

	return result
}

func (r *Runner) runStage(ctx context.Context, s Stage, board *blackboard.Board) StageResult {
	log := r.log.With(zap.String("stage", s.Name()))
	log.Debug("pipeline: stage starting")

	rev := board.Revision()
	start := time.Now()
	err := s.Run(ctx, board)
	sr := StageResult{Name: s.Name(), Duration: time.Since(start)}

	if stray := strayKeys(board.WrittenSince(rev), s.Outputs()); len(stray) > 0 {
		board.Revert(rev, stray)
		if err == nil {
			err = &OwnershipError{Stage: s.Name(), Keys: stray}
		}
	}

	switch {
	case err != nil:
		sr.Status = StatusFailed
		sr.Err = err
	default:
		for _, key := range s.Outputs() {
			if m, ok := board.MarkerAt(key); ok {
				sr.Markers = append(sr.Markers, m.Reason)
			}
		}
		sr.Status = StatusOK
		if len(sr.Markers) > 0 {
			sr.Status = StatusDegraded
		}
	}

	fields := []zap.Field{
		zap.String("status", string(sr.Status)),
		zap.Int64("duration_ms", sr.Duration.Milliseconds()),
	}
	switch sr.Status {
	case StatusFailed:
		log.Error("pipeline: stage failed", append(fields, zap.Error(err))...)
	case StatusDegraded:
		log.Warn("pipeline: stage degraded", append(fields, zap.Strings("markers", sr.Markers))...)
	default:
		log.Info("pipeline: stage complete", fields...)
	}
	return sr
}

// failure describes a stopped run. Only the run deadline counts as a
// timeout; a collaborator attempt that hit its own deadline is an ordinary
// stage failure.
func (r *Runner) failure(runCtx context.Context, stage string, err error) *types.RunFailure {
	f := &types.RunFailure{Stage: stage, Reason: err.Error()}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		f.TimedOut = true
		f.Reason = "run timed out: " + err.Error()
	}
	return f
}

func strayKeys(written, owned []string) []string {
	var stray []string
	for _, k := range written {
		if !slices.Contains(owned, k) {
			stray = append(stray, k)
		}
	}
	return stray
}
