// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// UserProfile describes the patient the report is written for.
type UserProfile struct {
	Name string `json:"name" yaml:"name"`
	Age  int    `json:"age,omitempty" yaml:"age,omitempty"`
}

// RunFailure records why a pipeline run stopped early.
type RunFailure struct {
	Stage    string `json:"stage" yaml:"stage"`
	Reason   string `json:"reason" yaml:"reason"`
	TimedOut bool   `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
}

// Section is one titled block of the final report. An unavailable section
// carries the reason instead of content.
type Section struct {
	Title     string `json:"title" yaml:"title"`
	Available bool   `json:"available" yaml:"available"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Prose sections render Lines as paragraphs instead of a list.
	Prose bool     `json:"prose,omitempty" yaml:"prose,omitempty"`
	Lines []string `json:"lines,omitempty" yaml:"lines,omitempty"`
}

// Measurement is a lab result placed in its clinical context.
type Measurement struct {
	Test      string `json:"test" yaml:"test"`
	Value     string `json:"value" yaml:"value"`
	Unit      string `json:"unit" yaml:"unit"`
	Date      string `json:"date" yaml:"date"`
	Clinician string `json:"clinician" yaml:"clinician"`
	Source    string `json:"source" yaml:"source"`

	// Flag is "High", "Low", or empty.
	Flag string `json:"flag,omitempty" yaml:"flag,omitempty"`
}

// FinalReport is the terminal artifact of a run.
type FinalReport struct {
	Title       string      `json:"title" yaml:"title"`
	Patient     UserProfile `json:"patient" yaml:"patient"`
	RecordCount int         `json:"record_count" yaml:"record_count"`

	// Complete is false when the run was aborted or timed out.
	Complete bool        `json:"complete" yaml:"complete"`
	Failure  *RunFailure `json:"failure,omitempty" yaml:"failure,omitempty"`

	Measurements []Measurement `json:"measurements" yaml:"measurements"`
	Conflicts    []Conflict    `json:"conflicts" yaml:"conflicts"`
	Sections     []Section     `json:"sections" yaml:"sections"`
}

// Section returns the section with the given title.
func (r FinalReport) Section(title string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return Section{}, false
}
