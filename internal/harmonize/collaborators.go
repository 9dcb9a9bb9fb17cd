// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harmonize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/internal/container"
	"github.com/pdiddy/record-harmonizer/internal/ingest"
	"github.com/pdiddy/record-harmonizer/internal/llm"
	"github.com/pdiddy/record-harmonizer/internal/narrative"
	"github.com/pdiddy/record-harmonizer/internal/structure"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Collaborators are the external services the stages call.
type Collaborators struct {
	Extractor  collab.Extractor
	Structurer collab.Structurer
	Narrator   collab.Narrator
}

// NewCollaborators builds the collaborators cfg selects, wrapped in the
// call policy and, when cache is non-nil, the response cache.
func NewCollaborators(ctx context.Context, cfg types.Config, cache collab.Cache, log *zap.Logger) (Collaborators, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ex, err := ingest.FromConfig(ctx, cfg.Ingest, container.NewLazy())
	if err != nil {
		return Collaborators{}, fmt.Errorf("document source: %w", err)
	}
	s, err := newStructurer(cfg.Structure, log)
	if err != nil {
		return Collaborators{}, fmt.Errorf("structuring backend: %w", err)
	}
	n, err := newNarrator(cfg.Narrative, log)
	if err != nil {
		return Collaborators{}, fmt.Errorf("narrative backend: %w", err)
	}

	return Wrap(Collaborators{Extractor: ex, Structurer: s, Narrator: n},
		collab.PolicyFromConfig(cfg.Collaborators, log), cache, log), nil
}

// Wrap applies p to every collaborator. With a cache, structuring and
// narrative responses are served from it; only successful responses are
// stored.
func Wrap(c Collaborators, p collab.Policy, cache collab.Cache, log *zap.Logger) Collaborators {
	out := Collaborators{
		Extractor:  collab.GuardExtractor(c.Extractor, p),
		Structurer: collab.GuardStructurer(c.Structurer, p),
		Narrator:   collab.GuardNarrator(c.Narrator, p),
	}
	if cache != nil {
		out.Structurer = collab.CachedStructurer(out.Structurer, cache, backendName(c.Structurer), log)
		out.Narrator = collab.CachedNarrator(out.Narrator, cache, backendName(c.Narrator), log)
	}
	return out
}

// backendName keys the cache by backend so switching models never serves
// another model's responses.
func backendName(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}

func newStructurer(cfg types.StructureConfig, log *zap.Logger) (collab.Structurer, error) {
	switch cfg.Backend {
	case "", types.BackendRules:
		return structure.Rules{}, nil
	case types.BackendClaude:
		client, err := llm.New(cfg.AIConfig, log)
		if err != nil {
			return nil, err
		}
		return structure.NewClaude(client, cfg.Model), nil
	}
	return nil, fmt.Errorf("unknown backend %q: want %s or %s", cfg.Backend, types.BackendRules, types.BackendClaude)
}

func newNarrator(cfg types.NarrativeConfig, log *zap.Logger) (collab.Narrator, error) {
	switch cfg.Backend {
	case "", types.BackendTemplate:
		return narrative.Template{}, nil
	case types.BackendClaude:
		client, err := llm.New(cfg.AIConfig, log)
		if err != nil {
			return nil, err
		}
		return narrative.NewClaude(client, cfg.Model), nil
	}
	return nil, fmt.Errorf("unknown backend %q: want %s or %s", cfg.Backend, types.BackendTemplate, types.BackendClaude)
}
