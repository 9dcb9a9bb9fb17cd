// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package blackboard

import (
	"errors"
	"fmt"
)

// MarkerKind classifies a soft error.
type MarkerKind string

const (
	// MarkerNoInput means the stage's own input was missing or empty.
	MarkerNoInput MarkerKind = "no-input"

	// MarkerUpstreamUnavailable means the input key held another stage's
	// marker.
	MarkerUpstreamUnavailable MarkerKind = "upstream-unavailable"
)

// Marker is written to a stage's output key in place of its artifact when
// the stage could not produce one. Downstream stages detect it through
// Fetch and degrade instead of failing.
type Marker struct {
	Stage  string     `json:"stage" yaml:"stage"`
	Kind   MarkerKind `json:"kind" yaml:"kind"`
	Reason string     `json:"reason" yaml:"reason"`
}

func (m *Marker) Error() string {
	return fmt.Sprintf("%s: %s (%s)", m.Stage, m.Reason, m.Kind)
}

// NoInput returns a no-input marker for stage.
func NoInput(stage, reason string) *Marker {
	return &Marker{Stage: stage, Kind: MarkerNoInput, Reason: reason}
}

// MarkerFor turns a Fetch error on key into the marker stage should write.
// An upstream marker is propagated with its reason; anything else becomes a
// no-input marker.
func MarkerFor(stage, key string, err error) *Marker {
	var up *Marker
	if errors.As(err, &up) {
		return &Marker{
			Stage:  stage,
			Kind:   MarkerUpstreamUnavailable,
			Reason: fmt.Sprintf("%s unavailable: %s", key, up.Reason),
		}
	}
	if errors.Is(err, ErrMissing) {
		return NoInput(stage, key+" not set")
	}
	return NoInput(stage, err.Error())
}
