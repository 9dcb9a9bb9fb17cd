// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// FailurePolicy decides what the runner does after a stage degrades.
type FailurePolicy string

const (
	// PolicyContinue runs every stage even when earlier stages wrote
	// soft-error markers.
	PolicyContinue FailurePolicy = "continue"

	// PolicyHaltOnDegraded stops at the first stage that leaves a marker
	// in one of its outputs.
	PolicyHaltOnDegraded FailurePolicy = "halt-on-degraded"
)

// PipelineConfig holds runner settings.
type PipelineConfig struct {
	Policy FailurePolicy `json:"policy" yaml:"policy" mapstructure:"policy"`

	// RunTimeout bounds a whole run. Zero disables the bound.
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout" mapstructure:"run_timeout"`

	// FinalizerTimeout bounds the summary stage after an abort.
	FinalizerTimeout time.Duration `json:"finalizer_timeout" yaml:"finalizer_timeout" mapstructure:"finalizer_timeout"`
}

// CollaboratorConfig holds the call policy applied to every external
// collaborator (extraction, structuring, narrative).
type CollaboratorConfig struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Retries is the number of extra attempts after the first (default 1).
	Retries int `json:"retries" yaml:"retries" mapstructure:"retries"`

	// Backoff is the wait before the first retry; it doubles afterwards.
	Backoff time.Duration `json:"backoff" yaml:"backoff" mapstructure:"backoff"`
}

// AIConfig holds settings shared by collaborators that call the Claude API.
type AIConfig struct {
	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against the API. Falls back to the
	// anthropic-api-key secret.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens caps the response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// IngestConfig holds settings for the document source collaborators.
type IngestConfig struct {
	// PDFImage converts PDFs to text on stdin/stdout.
	PDFImage string `json:"pdf_image" yaml:"pdf_image" mapstructure:"pdf_image"`

	// ImageOCRImage runs OCR on PNG/JPEG/TIFF input on stdin/stdout.
	ImageOCRImage string `json:"image_ocr_image" yaml:"image_ocr_image" mapstructure:"image_ocr_image"`

	// S3Region and S3Endpoint configure s3:// document references.
	S3Region   string `json:"s3_region" yaml:"s3_region" mapstructure:"s3_region"`
	S3Endpoint string `json:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty" mapstructure:"s3_endpoint"`

	// S3AccessKey and S3SecretKey fall back to the aws-access-key-id and
	// aws-secret-access-key secrets, then to the default AWS chain.
	S3AccessKey string `json:"-" yaml:"-" mapstructure:"s3_access_key"`
	S3SecretKey string `json:"-" yaml:"-" mapstructure:"s3_secret_key"`
}

// Backend names for the structuring and narrative collaborators.
const (
	BackendRules    = "rules"
	BackendTemplate = "template"
	BackendClaude   = "claude"
)

// StructureConfig selects the structuring collaborator.
type StructureConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Backend is "rules" (deterministic) or "claude".
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
}

// NarrativeConfig selects the narrative collaborator.
type NarrativeConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Backend is "template" (deterministic) or "claude".
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
}

// ConflictConfig holds the conflict detector's rules.
type ConflictConfig struct {
	Thresholds []LabThreshold `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
}

// StoreConfig holds settings for the SQLite run archive and response cache.
type StoreConfig struct {
	// Dir contains harmonizer.db.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Cache enables the collaborator response cache.
	Cache bool `json:"cache" yaml:"cache" mapstructure:"cache"`

	// Archive enables persisting every run.
	Archive bool `json:"archive" yaml:"archive" mapstructure:"archive"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is console or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// BatchConfig holds settings for concurrent runs.
type BatchConfig struct {
	// Concurrency limits how many runs execute at once (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// Config groups every setting of the harmonizer.
type Config struct {
	Pipeline      PipelineConfig     `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Collaborators CollaboratorConfig `json:"collaborators" yaml:"collaborators" mapstructure:"collaborators"`
	Ingest        IngestConfig       `json:"ingest" yaml:"ingest" mapstructure:"ingest"`
	Structure     StructureConfig    `json:"structure" yaml:"structure" mapstructure:"structure"`
	Narrative     NarrativeConfig    `json:"narrative" yaml:"narrative" mapstructure:"narrative"`
	Conflict      ConflictConfig     `json:"conflict" yaml:"conflict" mapstructure:"conflict"`
	Store         StoreConfig        `json:"store" yaml:"store" mapstructure:"store"`
	Log           LogConfig          `json:"log" yaml:"log" mapstructure:"log"`
	Batch         BatchConfig        `json:"batch" yaml:"batch" mapstructure:"batch"`
}

// DefaultConfig returns a configuration that runs fully offline with the
// deterministic collaborators.
func DefaultConfig() Config {
	return Config{
		Pipeline: PipelineConfig{
			Policy:           PolicyContinue,
			RunTimeout:       10 * time.Minute,
			FinalizerTimeout: 30 * time.Second,
		},
		Collaborators: CollaboratorConfig{
			Timeout: 2 * time.Minute,
			Retries: 1,
			Backoff: 2 * time.Second,
		},
		Ingest: IngestConfig{
			PDFImage:      "markitdown:latest",
			ImageOCRImage: "tesseract:latest",
			S3Region:      "us-east-1",
		},
		Structure: StructureConfig{
			AIConfig: AIConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 4096},
			Backend:  BackendRules,
		},
		Narrative: NarrativeConfig{
			AIConfig: AIConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 2048},
			Backend:  BackendTemplate,
		},
		Conflict: ConflictConfig{Thresholds: DefaultThresholds()},
		Store:    StoreConfig{Dir: ".harmonizer", Cache: false, Archive: false},
		Log:      LogConfig{Level: "info", Format: "console"},
		Batch:    BatchConfig{Concurrency: 4},
	}
}
