// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/record-harmonizer/internal/blackboard"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// funcStage adapts a function to Stage.
type funcStage struct {
	name    string
	outputs []string
	run     func(ctx context.Context, b *blackboard.Board) error
	calls   int
}

func (s *funcStage) Name() string      { return s.name }
func (s *funcStage) Outputs() []string { return s.outputs }
func (s *funcStage) Run(ctx context.Context, b *blackboard.Board) error {
	s.calls++
	return s.run(ctx, b)
}

func writer(name, key string, value any) *funcStage {
	return &funcStage{
		name:    name,
		outputs: []string{key},
		run: func(_ context.Context, b *blackboard.Board) error {
			b.Set(key, value)
			return nil
		},
	}
}

func TestRunner_RunsStagesInOrder(t *testing.T) {
	var order []string
	mk := func(name, key string) *funcStage {
		return &funcStage{
			name:    name,
			outputs: []string{key},
			run: func(_ context.Context, b *blackboard.Board) error {
				order = append(order, name)
				b.Set(key, name)
				return nil
			},
		}
	}

	board := blackboard.New(nil)
	res := New([]Stage{mk("a", "ka"), mk("b", "kb"), mk("c", "kc")}).Run(context.Background(), board)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.False(t, res.Aborted())
	require.Len(t, res.Stages, 3)
	for _, s := range res.Stages {
		assert.Equal(t, StatusOK, s.Status)
	}
	assert.False(t, board.Has(blackboard.KeyRunFailure))
}

func TestRunner_ContinuesPastSoftMarkers(t *testing.T) {
	soft := writer("standardize", blackboard.KeyRecords, blackboard.NoInput("standardize", "no input documents"))
	next := writer("relate", blackboard.KeyTimeline, "timeline")

	board := blackboard.New(nil)
	res := New([]Stage{soft, next}).Run(context.Background(), board)

	assert.False(t, res.Aborted())
	assert.Equal(t, StatusDegraded, res.Stages[0].Status)
	assert.Equal(t, []string{"no input documents"}, res.Stages[0].Markers)
	assert.Equal(t, StatusOK, res.Stages[1].Status)
	assert.Equal(t, 1, next.calls)
}

func TestRunner_HaltOnDegradedPolicy(t *testing.T) {
	soft := writer("standardize", blackboard.KeyRecords, blackboard.NoInput("standardize", "no input documents"))
	next := writer("relate", blackboard.KeyTimeline, "timeline")

	board := blackboard.New(nil)
	res := New([]Stage{soft, next}, WithPolicy(types.PolicyHaltOnDegraded)).Run(context.Background(), board)

	require.True(t, res.Aborted())
	assert.Equal(t, "standardize", res.Failure.Stage)
	assert.Equal(t, StatusSkipped, res.Stages[1].Status)
	assert.Equal(t, 0, next.calls)
}

func TestRunner_FatalErrorAbortsAndFinalizerRuns(t *testing.T) {
	failing := &funcStage{
		name:    "standardize",
		outputs: []string{blackboard.KeyRecords},
		run: func(context.Context, *blackboard.Board) error {
			return errors.New("extraction collaborator failed")
		},
	}
	next := writer("relate", blackboard.KeyTimeline, "timeline")

	var sawFailure types.RunFailure
	final := &funcStage{
		name:    "summary",
		outputs: []string{blackboard.KeyReport},
		run: func(_ context.Context, b *blackboard.Board) error {
			f, err := blackboard.Fetch[types.RunFailure](b, blackboard.KeyRunFailure)
			if err != nil {
				return err
			}
			sawFailure = f
			b.Set(blackboard.KeyReport, "incomplete")
			return nil
		},
	}

	board := blackboard.New(nil)
	res := New([]Stage{failing, next}, WithFinalizer(final, time.Second)).Run(context.Background(), board)

	require.True(t, res.Aborted())
	assert.Equal(t, "standardize", res.Failure.Stage)
	assert.Contains(t, res.Failure.Reason, "extraction collaborator failed")
	assert.Equal(t, 0, next.calls)
	assert.False(t, board.Has(blackboard.KeyTimeline))

	assert.Equal(t, "standardize", sawFailure.Stage)
	assert.Equal(t, "incomplete", board.Get(blackboard.KeyReport, nil))

	names := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name + ":" + string(s.Status)
	}
	assert.Equal(t, []string{"standardize:failed", "relate:skipped", "summary:ok"}, names)
}

func TestRunner_OwnershipViolationIsFatal(t *testing.T) {
	rogue := &funcStage{
		name:    "relate",
		outputs: []string{blackboard.KeyTimeline},
		run: func(_ context.Context, b *blackboard.Board) error {
			b.Set(blackboard.KeyTimeline, "t")
			b.Set(blackboard.KeyRecords, "overwritten")
			return nil
		},
	}

	board := blackboard.New(map[string]any{blackboard.KeyRecords: "records"})
	res := New([]Stage{rogue}).Run(context.Background(), board)

	require.True(t, res.Aborted())
	var oe *OwnershipError
	require.True(t, errors.As(res.Stages[0].Err, &oe))
	assert.Equal(t, []string{blackboard.KeyRecords}, oe.Keys)
	assert.Equal(t, "records", board.Get(blackboard.KeyRecords, nil), "stray write is discarded")
	assert.Equal(t, "t", board.Get(blackboard.KeyTimeline, nil), "owned write is kept")
}

func TestRunner_StrayWriteDiscardedWhenStageFails(t *testing.T) {
	rogue := &funcStage{
		name:    "relate",
		outputs: []string{blackboard.KeyTimeline},
		run: func(_ context.Context, b *blackboard.Board) error {
			b.Set(blackboard.KeyRecords, "overwritten")
			return errors.New("timeline collaborator failed")
		},
	}
	var seen any
	final := &funcStage{
		name:    "summary",
		outputs: []string{blackboard.KeyReport},
		run: func(_ context.Context, b *blackboard.Board) error {
			seen = b.Get(blackboard.KeyRecords, nil)
			return nil
		},
	}

	board := blackboard.New(map[string]any{blackboard.KeyRecords: "records"})
	res := New([]Stage{rogue}, WithFinalizer(final, time.Second)).Run(context.Background(), board)

	require.True(t, res.Aborted())
	assert.Contains(t, res.Failure.Reason, "timeline collaborator failed")
	assert.Equal(t, "records", seen)
}

func TestRunner_RunTimeoutMarksFailure(t *testing.T) {
	slow := &funcStage{
		name:    "standardize",
		outputs: []string{blackboard.KeyRecords},
		run: func(ctx context.Context, _ *blackboard.Board) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	next := writer("relate", blackboard.KeyTimeline, "timeline")

	var finalizerCtxErr error
	final := &funcStage{
		name:    "summary",
		outputs: []string{blackboard.KeyReport},
		run: func(ctx context.Context, b *blackboard.Board) error {
			finalizerCtxErr = ctx.Err()
			b.Set(blackboard.KeyReport, "incomplete")
			return nil
		},
	}

	board := blackboard.New(nil)
	res := New([]Stage{slow, next},
		WithTimeout(20*time.Millisecond),
		WithFinalizer(final, time.Second),
	).Run(context.Background(), board)

	require.True(t, res.Aborted())
	assert.True(t, res.Failure.TimedOut)
	assert.Equal(t, "standardize", res.Failure.Stage)
	assert.Equal(t, 0, next.calls)
	assert.NoError(t, finalizerCtxErr)

	s, ok := res.Stage("summary")
	require.True(t, ok)
	assert.Equal(t, StatusOK, s.Status)
}

func TestRunner_TimedOutOnlyForRunDeadline(t *testing.T) {
	tests := []struct {
		name         string
		runTimeout   time.Duration
		stageErr     func(ctx context.Context) error
		wantTimedOut bool
	}{
		{
			name:       "collaborator attempt deadline",
			runTimeout: time.Minute,
			stageErr: func(context.Context) error {
				return fmt.Errorf("extracting records: attempt 2: %w", context.DeadlineExceeded)
			},
		},
		{
			name:       "plain failure",
			runTimeout: time.Minute,
			stageErr: func(context.Context) error {
				return errors.New("extraction collaborator failed")
			},
		},
		{
			name:       "run deadline",
			runTimeout: 20 * time.Millisecond,
			stageErr: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantTimedOut: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &funcStage{
				name:    "standardize",
				outputs: []string{blackboard.KeyRecords},
				run: func(ctx context.Context, _ *blackboard.Board) error {
					return tt.stageErr(ctx)
				},
			}

			res := New([]Stage{s}, WithTimeout(tt.runTimeout)).Run(context.Background(), blackboard.New(nil))

			require.True(t, res.Aborted())
			assert.Equal(t, tt.wantTimedOut, res.Failure.TimedOut)
			if tt.wantTimedOut {
				assert.True(t, strings.HasPrefix(res.Failure.Reason, "run timed out"))
			} else {
				assert.NotContains(t, res.Failure.Reason, "run timed out")
			}
		})
	}
}

func TestRunner_FinalizerFailureIsReported(t *testing.T) {
	final := &funcStage{
		name:    "summary",
		outputs: []string{blackboard.KeyReport},
		run: func(context.Context, *blackboard.Board) error {
			return errors.New("narrative collaborator failed")
		},
	}

	res := New(nil, WithFinalizer(final, time.Second)).Run(context.Background(), blackboard.New(nil))

	require.True(t, res.Aborted())
	assert.Equal(t, "summary", res.Failure.Stage)
}
