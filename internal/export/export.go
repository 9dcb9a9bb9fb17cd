// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes a FinalReport as Markdown, JSON, YAML, or an XLSX
// workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/record-harmonizer/internal/summary"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Format names an output format.
type Format string

const (
	Markdown Format = "markdown"
	JSON     Format = "json"
	YAML     Format = "yaml"
	XLSX     Format = "xlsx"
)

// ParseFormat accepts a format name or a common alias ("md", "yml").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return Markdown, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "xlsx", "excel":
		return XLSX, nil
	}
	return "", fmt.Errorf("unknown format %q: want markdown, json, yaml, or xlsx", s)
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	switch f {
	case JSON:
		return ".json"
	case YAML:
		return ".yaml"
	case XLSX:
		return ".xlsx"
	}
	return ".md"
}

// Binary reports whether f should not be written to a terminal.
func (f Format) Binary() bool { return f == XLSX }

// Write renders r to w in format f.
func Write(w io.Writer, r types.FinalReport, f Format) error {
	switch f {
	case Markdown:
		_, err := io.WriteString(w, summary.Markdown(r))
		return err
	case JSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case XLSX:
		return writeWorkbook(w, r)
	}
	return fmt.Errorf("unknown format %q", f)
}

// ToFile renders r into path, replacing any existing file.
func ToFile(path string, r types.FinalReport, f Format) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(out, r, f); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}
