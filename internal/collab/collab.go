// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package collab defines the boundary between the pipeline stages and the
// external collaborators they call: text extraction, structuring, and
// narrative generation. Implementations live in ingest, structure, and
// narrative; this package adds the call policy (timeout, retry, typed
// failures) and the response cache that every implementation is wrapped in.
package collab

import (
	"context"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Extractor turns a document reference (path or URI) into raw text.
type Extractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}

// Document is the input to a Structurer.
type Document struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

// Structurer turns raw document text into a Record following the target
// schema. The returned Record's ID and SourceID are set by the caller.
type Structurer interface {
	Structure(ctx context.Context, doc Document) (types.Record, error)
}

// Role selects the instruction a Narrator follows.
type Role string

const (
	RoleMapping  Role = "mapping"
	RoleConflict Role = "conflict"
	RoleSummary  Role = "summary"
)

// Instruction returns the system instruction for the role.
func (r Role) Instruction() string {
	switch r {
	case RoleMapping:
		return "You are a medical data integrator. Map relationships between records to create a patient timeline."
	case RoleConflict:
		return "You are a medical conflict resolution specialist. Analyze records for conflicts and list them explicitly."
	case RoleSummary:
		return "You are a patient advocate. Combine the timeline and conflict report into a safe, actionable summary."
	}
	return ""
}

// SummaryInput is the payload for RoleSummary.
type SummaryInput struct {
	Patient   types.UserProfile     `json:"patient"`
	Timeline  *types.Timeline       `json:"timeline,omitempty"`
	Narrative string                `json:"relational_summary,omitempty"`
	Conflicts *types.ConflictReport `json:"conflict_report,omitempty"`
}

// NarrativeRequest asks a Narrator for text in a role. Payload is a
// types.Timeline for RoleMapping, a types.ConflictReport for RoleConflict,
// and a SummaryInput for RoleSummary.
type NarrativeRequest struct {
	Role    Role `json:"role"`
	Payload any  `json:"payload"`
}

// Narrator produces natural-language text from structured input.
type Narrator interface {
	Narrate(ctx context.Context, req NarrativeRequest) (string, error)
}
