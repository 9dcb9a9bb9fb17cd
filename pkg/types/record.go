// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data shared between pipeline stages, the
// collaborators, and the CLI.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RecordType classifies a source document.
type RecordType string

const (
	RecordLabReport    RecordType = "LAB_REPORT"
	RecordClinicalNote RecordType = "CLINICAL_NOTE"
	RecordOther        RecordType = "OTHER"
)

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	switch t {
	case RecordLabReport, RecordClinicalNote, RecordOther:
		return true
	}
	return false
}

// DateLayout is the layout for Record.Date.
const DateLayout = "2006-01-02"

// LabValue is a lab measurement as reported by the source. Models return
// numbers or strings ("210", "positive"); both decode into LabValue.
type LabValue string

// UnmarshalJSON accepts a JSON number or string.
func (v *LabValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = LabValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = LabValue(n.String())
	return nil
}

// Float parses the value as a number. Leading comparison signs such as
// "<" or ">" are ignored.
func (v LabValue) Float() (float64, bool) {
	s := strings.TrimSpace(string(v))
	s = strings.TrimLeft(s, "<>=~ ")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// LabResult is one measurement from a lab report.
type LabResult struct {
	Name  string   `json:"name" yaml:"name"`
	Value LabValue `json:"value" yaml:"value"`
	Unit  string   `json:"unit" yaml:"unit"`
}

// Medication is one prescribed or reported drug.
type Medication struct {
	Name      string `json:"name" yaml:"name"`
	Dosage    string `json:"dosage" yaml:"dosage"`
	Frequency string `json:"frequency" yaml:"frequency"`
}

// Entities groups the clinical entities found in a document.
type Entities struct {
	LabResults  []LabResult  `json:"lab_results" yaml:"lab_results"`
	Medications []Medication `json:"medications" yaml:"medications"`
	Diagnoses   []string     `json:"diagnoses" yaml:"diagnoses"`
}

// Record is the structured form of one source document. Records are
// created by the standardization stage and never modified afterwards.
type Record struct {
	// ID is a stable identifier derived from the source reference and its
	// extracted text.
	ID string `json:"id" yaml:"id"`

	// SourceID is the document reference (path or URI) the record came from.
	SourceID string `json:"source_file" yaml:"source_file"`

	// Type classifies the document.
	Type RecordType `json:"record_type" yaml:"record_type"`

	// Date is the encounter date in YYYY-MM-DD form, or empty when unknown.
	Date string `json:"date" yaml:"date"`

	// Clinician is the authoring clinician, or empty when unknown.
	Clinician string `json:"doctor" yaml:"doctor"`

	Entities Entities `json:"entities" yaml:"entities"`
}

// Ref returns the short reference used when findings cite this record.
func (r Record) Ref() RecordRef {
	return RecordRef{ID: r.ID, SourceID: r.SourceID, Date: r.Date}
}

// RecordRef points at a Record from findings and timeline relations.
type RecordRef struct {
	ID       string `json:"id" yaml:"id"`
	SourceID string `json:"source_file" yaml:"source_file"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
}

// Label returns a human-readable label for the reference.
func (r RecordRef) Label() string {
	if r.Date == "" {
		return r.SourceID
	}
	return r.SourceID + " (" + r.Date + ")"
}
