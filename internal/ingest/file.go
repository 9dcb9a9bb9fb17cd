// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pdiddy/record-harmonizer/internal/collab"
)

// FileOpener opens local paths. A "file://" prefix is accepted.
type FileOpener struct{}

func (FileOpener) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	p := ref
	if scheme, rest := splitScheme(ref); scheme == "file" {
		p = rest
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, collab.Permanent(fmt.Errorf("opening %s: %w", p, err))
		}
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, collab.Permanent(fmt.Errorf("%s is a directory", p))
	}
	return f, nil
}
