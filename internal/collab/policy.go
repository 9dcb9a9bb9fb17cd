// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collab

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Policy bounds every collaborator call.
type Policy struct {
	// Timeout bounds one attempt. Zero leaves attempts unbounded.
	Timeout time.Duration

	// Retries is the number of attempts after the first.
	Retries int

	// Backoff is the wait before the first retry; it doubles per retry.
	Backoff time.Duration

	Logger *zap.Logger
}

// PolicyFromConfig builds a Policy from configuration.
func PolicyFromConfig(cfg types.CollaboratorConfig, log *zap.Logger) Policy {
	return Policy{
		Timeout: cfg.Timeout,
		Retries: cfg.Retries,
		Backoff: cfg.Backoff,
		Logger:  log,
	}
}

// Call runs fn under the policy and returns its result. Each attempt gets
// its own deadline; a failed attempt is retried after an exponential
// backoff unless the error is permanent or ctx is done. On exhaustion the
// error is a *Error of the given kind.
func Call[T any](ctx context.Context, p Policy, kind Kind, ref string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= max(p.Retries, 0); attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.Backoff
			log.Warn("collab: retrying",
				zap.String("kind", string(kind)),
				zap.String("ref", ref),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return zero, &Error{Kind: kind, Ref: ref, Attempts: attempts, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		attempts++
		v, err := attempt1(ctx, p.Timeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil && !errors.Is(lastErr, ctx.Err()) {
		lastErr = errors.Join(lastErr, ctx.Err())
	}
	return zero, &Error{Kind: kind, Ref: ref, Attempts: attempts, Err: lastErr}
}

func attempt1[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(actx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-actx.Done():
		var zero T
		return zero, actx.Err()
	}
}

// Guarded wrappers apply a Policy to each collaborator interface.

type guardedExtractor struct {
	inner  Extractor
	policy Policy
}

// GuardExtractor wraps e so every call follows p.
func GuardExtractor(e Extractor, p Policy) Extractor {
	return &guardedExtractor{inner: e, policy: p}
}

func (g *guardedExtractor) Extract(ctx context.Context, ref string) (string, error) {
	return Call(ctx, g.policy, KindExtraction, ref, func(ctx context.Context) (string, error) {
		return g.inner.Extract(ctx, ref)
	})
}

type guardedStructurer struct {
	inner  Structurer
	policy Policy
}

// GuardStructurer wraps s so every call follows p.
func GuardStructurer(s Structurer, p Policy) Structurer {
	return &guardedStructurer{inner: s, policy: p}
}

func (g *guardedStructurer) Structure(ctx context.Context, doc Document) (types.Record, error) {
	return Call(ctx, g.policy, KindStructuring, doc.Ref, func(ctx context.Context) (types.Record, error) {
		return g.inner.Structure(ctx, doc)
	})
}

type guardedNarrator struct {
	inner  Narrator
	policy Policy
}

// GuardNarrator wraps n so every call follows p. Empty narrative output is
// treated as a failure.
func GuardNarrator(n Narrator, p Policy) Narrator {
	return &guardedNarrator{inner: n, policy: p}
}

func (g *guardedNarrator) Narrate(ctx context.Context, req NarrativeRequest) (string, error) {
	return Call(ctx, g.policy, KindNarrative, string(req.Role), func(ctx context.Context) (string, error) {
		text, err := g.inner.Narrate(ctx, req)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", errEmptyNarrative
		}
		return text, nil
	})
}

var errEmptyNarrative = errors.New("narrator returned empty text")
