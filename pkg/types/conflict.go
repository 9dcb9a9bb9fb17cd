// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ConflictKind categorizes a finding.
type ConflictKind string

const (
	ConflictDosageMismatch       ConflictKind = "dosage-mismatch"
	ConflictDiagnosisDiscrepancy ConflictKind = "diagnosis-discrepancy"
	ConflictOther                ConflictKind = "other"
)

// Title returns the heading used for the kind in reports.
func (k ConflictKind) Title() string {
	switch k {
	case ConflictDosageMismatch:
		return "Dosage mismatch"
	case ConflictDiagnosisDiscrepancy:
		return "Lab/diagnosis discrepancy"
	}
	return "Other conflict"
}

// Conflict is one inconsistency between records.
type Conflict struct {
	Kind ConflictKind `json:"kind" yaml:"kind"`

	// Subject is the medication or lab test the finding is about.
	Subject string `json:"subject" yaml:"subject"`

	// Records are the records involved, in record order.
	Records []RecordRef `json:"records" yaml:"records"`

	Explanation string `json:"explanation" yaml:"explanation"`

	// Question is the follow-up question a clinician should answer.
	Question string `json:"question" yaml:"question"`
}

// ConflictReport is the output of the conflict detection stage. An empty
// Findings slice means the scan ran and found nothing.
type ConflictReport struct {
	Findings []Conflict `json:"findings" yaml:"findings"`

	// RecordsScanned is the number of records the detector looked at.
	RecordsScanned int `json:"records_scanned" yaml:"records_scanned"`

	Narrative string `json:"narrative" yaml:"narrative"`
}

// Count returns the number of findings of the given kind.
func (r ConflictReport) Count(kind ConflictKind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// ThresholdDirection says which side of a limit is clinically notable.
type ThresholdDirection string

const (
	ThresholdAbove ThresholdDirection = "above"
	ThresholdBelow ThresholdDirection = "below"
)

// LabThreshold flags a lab value that should be backed by a diagnosis.
type LabThreshold struct {
	// Test is the lab name, matched case-insensitively.
	Test string `json:"test" yaml:"test" mapstructure:"test"`

	// Aliases are alternative names for the same test.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty" mapstructure:"aliases"`

	Direction ThresholdDirection `json:"direction" yaml:"direction" mapstructure:"direction"`
	Limit     float64            `json:"limit" yaml:"limit" mapstructure:"limit"`

	// Unit is informational; values are compared as reported.
	Unit string `json:"unit" yaml:"unit" mapstructure:"unit"`

	// Diagnoses lists diagnosis names that account for the value. Matching
	// is case-insensitive substring.
	Diagnoses []string `json:"diagnoses" yaml:"diagnoses" mapstructure:"diagnoses"`
}

// Crossed reports whether v is past the limit in the threshold's direction.
func (t LabThreshold) Crossed(v float64) bool {
	if t.Direction == ThresholdBelow {
		return v < t.Limit
	}
	return v > t.Limit
}

// DefaultThresholds returns the built-in lab thresholds.
func DefaultThresholds() []LabThreshold {
	return []LabThreshold{
		{
			Test:      "Cholesterol",
			Aliases:   []string{"Total Cholesterol"},
			Direction: ThresholdAbove,
			Limit:     200,
			Unit:      "mg/dL",
			Diagnoses: []string{"hyperlipidemia", "hypercholesterolemia", "dyslipidemia", "high cholesterol"},
		},
		{
			Test:      "LDL",
			Aliases:   []string{"LDL Cholesterol"},
			Direction: ThresholdAbove,
			Limit:     160,
			Unit:      "mg/dL",
			Diagnoses: []string{"hyperlipidemia", "hypercholesterolemia", "dyslipidemia", "high cholesterol"},
		},
		{
			Test:      "Glucose",
			Aliases:   []string{"Fasting Glucose"},
			Direction: ThresholdAbove,
			Limit:     125,
			Unit:      "mg/dL",
			Diagnoses: []string{"diabetes", "prediabetes", "hyperglycemia"},
		},
		{
			Test:      "HbA1c",
			Aliases:   []string{"A1c", "Hemoglobin A1c"},
			Direction: ThresholdAbove,
			Limit:     6.4,
			Unit:      "%",
			Diagnoses: []string{"diabetes", "prediabetes"},
		},
		{
			Test:      "Hemoglobin",
			Direction: ThresholdBelow,
			Limit:     12,
			Unit:      "g/dL",
			Diagnoses: []string{"anemia", "anaemia"},
		},
		{
			Test:      "TSH",
			Direction: ThresholdAbove,
			Limit:     4.5,
			Unit:      "mIU/L",
			Diagnoses: []string{"hypothyroidism", "thyroiditis"},
		},
	}
}
