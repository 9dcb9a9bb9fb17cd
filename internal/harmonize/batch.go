// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harmonize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// DefaultConcurrency bounds batch runs when no limit is configured.
const DefaultConcurrency = 4

// RunBatch runs every request with at most concurrency runs in flight.
// Outcomes are returned in request order. A run that fails to produce a
// report does not stop the others; all such errors are joined.
func (h *Harmonizer) RunBatch(ctx context.Context, reqs []Request, concurrency int) ([]Outcome, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	outcomes := make([]Outcome, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i], errs[i] = h.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	h.log.Info("harmonize: batch finished", zap.Int("runs", len(reqs)), zap.Int("failed", failed))
	return outcomes, errors.Join(errs...)
}

// Manifest lists the patients of a batch.
type Manifest struct {
	Patients []ManifestEntry `yaml:"patients"`
}

// ManifestEntry is one patient in a manifest. Relative document paths are
// resolved against the manifest's directory.
type ManifestEntry struct {
	ID        string   `yaml:"id,omitempty"`
	Name      string   `yaml:"name"`
	Age       int      `yaml:"age,omitempty"`
	Documents []string `yaml:"documents"`
}

// LoadManifest reads a YAML manifest and returns one request per patient.
func LoadManifest(path string) ([]Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(m.Patients) == 0 {
		return nil, fmt.Errorf("manifest %s lists no patients", path)
	}

	base := filepath.Dir(path)
	reqs := make([]Request, 0, len(m.Patients))
	for i, p := range m.Patients {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("manifest %s: patient %d has no name", path, i+1)
		}
		docs := make([]string, 0, len(p.Documents))
		for _, d := range p.Documents {
			docs = append(docs, resolve(base, d))
		}
		reqs = append(reqs, Request{
			ID:        p.ID,
			Documents: docs,
			Patient:   types.UserProfile{Name: p.Name, Age: p.Age},
		})
	}
	return reqs, nil
}

// resolve joins relative local paths onto base. URIs and absolute paths are
// returned unchanged.
func resolve(base, ref string) string {
	if strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(base, ref)
}
