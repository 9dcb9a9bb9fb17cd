// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Completer sends a prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Claude narrates with a language model, using the role's instruction as
// the system prompt and the payload as JSON.
type Claude struct {
	llm   Completer
	model string
}

// NewClaude returns a Claude narrator.
func NewClaude(llm Completer, model string) *Claude {
	return &Claude{llm: llm, model: model}
}

// Name identifies the backend in cache keys.
func (c *Claude) Name() string { return types.BackendClaude + ":" + c.model }

var roleTasks = map[collab.Role]string{
	collab.RoleMapping:  "Describe the patient timeline below in a few short paragraphs. Mention how the records relate by date, clinician, and shared findings.",
	collab.RoleConflict: "Explain the conflicts below in plain language for the patient. If there are none, say so in one sentence.",
	collab.RoleSummary:  "Write a short overview for the patient that combines the timeline and conflict report below. Do not give medical advice.",
}

// Narrate implements collab.Narrator.
func (c *Claude) Narrate(ctx context.Context, req collab.NarrativeRequest) (string, error) {
	task, ok := roleTasks[req.Role]
	if !ok {
		return "", collab.Permanent(fmt.Errorf("unknown narrative role %q", req.Role))
	}
	data, err := json.MarshalIndent(req.Payload, "", "  ")
	if err != nil {
		return "", collab.Permanent(fmt.Errorf("encoding %s payload: %w", req.Role, err))
	}

	prompt := task + "\n\n" + string(data)
	text, err := c.llm.Complete(ctx, req.Role.Instruction(), prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
