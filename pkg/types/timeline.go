// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RelationKind names the reason two records are linked.
type RelationKind string

const (
	RelationSameDate      RelationKind = "same-date"
	RelationSameClinician RelationKind = "same-clinician"
	RelationSharedEntity  RelationKind = "shared-entity"
)

// Relation links two records. From always precedes To in record order.
type Relation struct {
	Kind   RelationKind `json:"kind" yaml:"kind"`
	From   RecordRef    `json:"from" yaml:"from"`
	To     RecordRef    `json:"to" yaml:"to"`
	Detail string       `json:"detail" yaml:"detail"`
}

// TimelineEntry collects the records that share one encounter date.
type TimelineEntry struct {
	// Date is the shared date, or empty for undated records.
	Date        string       `json:"date" yaml:"date"`
	Records     []RecordRef  `json:"records" yaml:"records"`
	Clinicians  []string     `json:"clinicians" yaml:"clinicians"`
	Diagnoses   []string     `json:"diagnoses" yaml:"diagnoses"`
	Medications []Medication `json:"medications" yaml:"medications"`
	LabResults  []LabResult  `json:"lab_results" yaml:"lab_results"`
}

// Timeline is the relational view over the standardized records. It is
// produced once by the relation mapping stage.
type Timeline struct {
	// Records are the standardized records in input order.
	Records []Record `json:"records" yaml:"records"`

	// Entries are chronological; undated records come last.
	Entries []TimelineEntry `json:"entries" yaml:"entries"`

	Relations []Relation `json:"relations" yaml:"relations"`
}
