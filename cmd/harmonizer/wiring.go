// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/internal/export"
	"github.com/pdiddy/record-harmonizer/internal/harmonize"
	"github.com/pdiddy/record-harmonizer/internal/store"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// newHarmonizer builds a Harmonizer from cfg. The returned close function
// releases the store when one was opened.
func newHarmonizer(ctx context.Context) (*harmonize.Harmonizer, func(), error) {
	var (
		st    *store.Store
		cache collab.Cache
		opts  = []harmonize.Option{harmonize.WithLogger(logger)}
	)
	if cfg.Store.Cache || cfg.Store.Archive {
		var err error
		if st, err = store.Open(cfg.Store.Dir); err != nil {
			return nil, nil, err
		}
		if cfg.Store.Cache {
			cache = st
		}
		if cfg.Store.Archive {
			opts = append(opts, harmonize.WithArchive(st))
		}
	}
	closeStore := func() {
		if st != nil {
			st.Close()
		}
	}

	c, err := harmonize.NewCollaborators(ctx, cfg, cache, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return harmonize.New(c, cfg, opts...), closeStore, nil
}

// openArchive opens the store for commands that read archived runs.
func openArchive() (*store.Store, error) {
	if _, err := os.Stat(store.Path(cfg.Store.Dir)); err != nil {
		return nil, fmt.Errorf("no run archive in %s: run with --archive first", cfg.Store.Dir)
	}
	return store.Open(cfg.Store.Dir)
}

// emit writes r in format f to path, or to w when path is empty.
func emit(w io.Writer, path string, r types.FinalReport, f export.Format) error {
	if path == "" {
		if f.Binary() {
			return fmt.Errorf("%s output needs --out", f)
		}
		return export.Write(w, r, f)
	}
	return export.ToFile(path, r, f)
}
