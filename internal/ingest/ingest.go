// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest implements the text extraction collaborator. A document
// reference is opened by scheme (local path, file:// URL or s3://bucket/key)
// and decoded by file extension: plain text passes through, PDFs and scans
// are piped through a container image.
package ingest

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Opener fetches the bytes behind a document reference.
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Decoder turns document bytes into text.
type Decoder interface {
	Decode(ctx context.Context, ref string, r io.Reader) (string, error)
}

// Extractor routes references to an Opener and a Decoder.
type Extractor struct {
	openers  map[string]Opener
	decoders map[string]Decoder
}

// NewExtractor returns an Extractor that reads local files, bare or as
// file:// URLs, and decodes plain text. Register more schemes and extensions with Handle and HandleExt.
func NewExtractor() *Extractor {
	e := &Extractor{
		openers:  map[string]Opener{"": FileOpener{}, "file": FileOpener{}},
		decoders: map[string]Decoder{},
	}
	for _, ext := range textExtensions {
		e.decoders[ext] = PlainText{}
	}
	return e
}

var textExtensions = []string{".txt", ".text", ".md", ".markdown", ""}

// Handle registers o for references with the given scheme ("s3").
func (e *Extractor) Handle(scheme string, o Opener) {
	e.openers[scheme] = o
}

// HandleExt registers d for the given extensions (".pdf").
func (e *Extractor) HandleExt(d Decoder, exts ...string) {
	for _, ext := range exts {
		e.decoders[strings.ToLower(ext)] = d
	}
}

// Extract implements collab.Extractor. Unknown schemes and extensions fail
// permanently with collab.ErrUnsupportedFormat.
func (e *Extractor) Extract(ctx context.Context, ref string) (string, error) {
	scheme, _ := splitScheme(ref)
	opener, ok := e.openers[scheme]
	if !ok {
		return "", collab.Permanent(fmt.Errorf("%s: scheme %q: %w", ref, scheme, collab.ErrUnsupportedFormat))
	}
	ext := strings.ToLower(path.Ext(ref))
	decoder, ok := e.decoders[ext]
	if !ok {
		return "", collab.Permanent(fmt.Errorf("%s: extension %q: %w", ref, ext, collab.ErrUnsupportedFormat))
	}

	rc, err := opener.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	text, err := decoder.Decode(ctx, ref, rc)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: no text extracted", ref)
	}
	return text, nil
}

func splitScheme(ref string) (scheme, rest string) {
	i := strings.Index(ref, "://")
	if i <= 0 {
		return "", ref
	}
	return strings.ToLower(ref[:i]), ref[i+3:]
}

// PlainText decodes UTF-8 text as is.
type PlainText struct{}

func (PlainText) Decode(_ context.Context, ref string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", ref, err)
	}
	return string(data), nil
}

// FromConfig returns an Extractor for local text files, PDFs and scans
// (through rt), and s3:// objects.
func FromConfig(ctx context.Context, cfg types.IngestConfig, rt RuntimeProvider) (*Extractor, error) {
	e := NewExtractor()
	e.HandleExt(NewPDFDecoder(rt, cfg.PDFImage), PDFExtensions...)
	e.HandleExt(NewOCRDecoder(rt, cfg.ImageOCRImage), ImageExtensions...)

	s3o, err := NewS3Opener(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.Handle("s3", s3o)
	return e, nil
}
