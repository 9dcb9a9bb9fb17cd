// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/internal/llm"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

const systemInstruction = "You are a medical data specialist. Extract information from raw text into a strict JSON schema."

var structurePromptTmpl = template.Must(template.New("structure").Parse(`Convert the following medical document into one JSON object with exactly these fields:

- source_file: the document name given below
- record_type: one of "LAB_REPORT", "CLINICAL_NOTE", "OTHER"
- date: the encounter date as YYYY-MM-DD, or "" if the document has none
- doctor: the authoring clinician (e.g. "Dr. Smith"), or "" if unknown
- entities: an object with
  - lab_results: array of {"name": string, "value": string, "unit": string}
  - medications: array of {"name": string, "dosage": string, "frequency": string}
  - diagnoses: array of strings

Copy values as written in the document. Do not infer diagnoses that are not stated. Respond with the JSON object only.

Example response:
{"source_file": "lab_report.pdf", "record_type": "LAB_REPORT", "date": "2024-05-10", "doctor": "Dr. Smith", "entities": {"lab_results": [{"name": "Cholesterol", "value": "210", "unit": "mg/dL"}], "medications": [], "diagnoses": []}}

Document name: {{.Ref}}

Document text:
{{.Text}}
`))

// Completer sends a prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Claude structures documents with a language model.
type Claude struct {
	llm   Completer
	model string
}

// NewClaude returns a Claude structurer. model names the backend in cache
// keys.
func NewClaude(llm Completer, model string) *Claude {
	return &Claude{llm: llm, model: model}
}

// Name identifies the backend in cache keys.
func (c *Claude) Name() string { return types.BackendClaude + ":" + c.model }

// Structure implements collab.Structurer. A reply that is not valid JSON or
// violates the schema fails with *collab.SchemaError.
func (c *Claude) Structure(ctx context.Context, doc collab.Document) (types.Record, error) {
	var buf bytes.Buffer
	if err := structurePromptTmpl.Execute(&buf, doc); err != nil {
		return types.Record{}, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := c.llm.Complete(ctx, systemInstruction, buf.String())
	if err != nil {
		return types.Record{}, err
	}

	var rec types.Record
	if err := json.Unmarshal([]byte(llm.JSONBody(reply)), &rec); err != nil {
		return types.Record{}, &collab.SchemaError{Problems: []string{"reply is not a JSON record: " + err.Error()}}
	}
	Normalize(&rec)
	if err := Validate(rec); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}
