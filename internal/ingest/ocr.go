// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/record-harmonizer/internal/container"
)

// PDFExtensions and ImageExtensions are the formats handled by containers.
var (
	PDFExtensions   = []string{".pdf"}
	ImageExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff"}
)

// RuntimeProvider yields a container runtime on demand.
type RuntimeProvider interface {
	Get(ctx context.Context) (container.Runtime, error)
}

// ContainerDecoder pipes documents through a container image that reads
// the document on stdin and writes text on stdout: markitdown for PDFs,
// tesseract ("stdin stdout") for scans.
type ContainerDecoder struct {
	runtime RuntimeProvider
	image   string
	args    []string
}

// NewContainerDecoder returns a decoder that runs image with args.
func NewContainerDecoder(rt RuntimeProvider, image string, args ...string) *ContainerDecoder {
	return &ContainerDecoder{runtime: rt, image: image, args: args}
}

// NewPDFDecoder runs a markitdown-style image.
func NewPDFDecoder(rt RuntimeProvider, image string) *ContainerDecoder {
	return NewContainerDecoder(rt, image)
}

// NewOCRDecoder runs a tesseract-style image.
func NewOCRDecoder(rt RuntimeProvider, image string) *ContainerDecoder {
	return NewContainerDecoder(rt, image, "stdin", "stdout")
}

func (d *ContainerDecoder) Decode(ctx context.Context, ref string, r io.Reader) (string, error) {
	rt, err := d.runtime.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", ref, err)
	}
	if err := rt.ImageExists(ctx, d.image); err != nil {
		return "", fmt.Errorf("%s image not available in %s: %w", d.image, rt.Name(), err)
	}

	var out bytes.Buffer
	if err := rt.Run(ctx, d.image, d.args, r, &out); err != nil {
		return "", fmt.Errorf("extracting %s with %s: %w", ref, d.image, err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%s produced empty output for %s", d.image, ref)
	}
	return out.String(), nil
}
