// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collab

import (
	"errors"
	"fmt"
)

// Kind identifies which collaborator failed.
type Kind string

const (
	KindExtraction  Kind = "extraction"
	KindStructuring Kind = "structuring"
	KindNarrative   Kind = "narrative"
)

// Error is the typed failure surfaced to a stage once a collaborator call
// has exhausted its attempts.
type Error struct {
	Kind     Kind
	Ref      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s of %s failed after %d attempt(s): %v", e.Kind, e.Ref, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// permanentError marks a cause that retrying cannot fix.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the call policy does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked
// with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ErrUnsupportedFormat is returned by extractors for references they
// cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// SchemaError reports structured output that violates the target schema.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation: %v", e.Problems)
}
