// Package types provides the unified type system for the MAPS analysis pipeline.
//
// This package defines all core data structures used throughout the system,
// ensuring consistency and interoperability between components.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SectionType identifies a named manuscript section produced by the
// upstream content extraction service.
type SectionType string

const (
	SectionAbstract     SectionType = "abstract"
	SectionIntroduction SectionType = "introduction"
	SectionMethods      SectionType = "methods"
	SectionResults      SectionType = "results"
	SectionDiscussion   SectionType = "discussion"
	SectionConclusion   SectionType = "conclusion"
	SectionReferences   SectionType = "references"
)

// AllSectionTypes returns the known section types in document order.
func AllSectionTypes() []SectionType {
	return []SectionType{
		SectionAbstract,
		SectionIntroduction,
		SectionMethods,
		SectionResults,
		SectionDiscussion,
		SectionConclusion,
		SectionReferences,
	}
}

// SectionSet holds the extracted text of a manuscript keyed by section type.
// Partial population is expected; stages must tolerate missing sections.
type SectionSet map[SectionType]string

// Has reports whether a section exists and is non-empty.
func (s SectionSet) Has(section SectionType) bool {
	text, ok := s[section]
	return ok && text != ""
}

// Get returns the text of a section, or empty string when absent.
func (s SectionSet) Get(section SectionType) string {
	return s[section]
}

// IsEmpty reports whether no section carries any content.
func (s SectionSet) IsEmpty() bool {
	for _, text := range s {
		if text != "" {
			return false
		}
	}
	return true
}

// StageID identifies one analysis stage variant. The set is closed; the
// pipeline dispatches stages through a uniform executor rather than ad hoc
// behavior lookup.
type StageID string

const (
	// StageIntake is the reserved pseudo-stage owning context keys seeded
	// from the run input before the first analysis stage executes.
	StageIntake StageID = "intake"

	StageContentAnalysis   StageID = "content_analysis"
	StageCitationAnalysis  StageID = "citation_analysis"
	StageClassification    StageID = "classification"
	StageSummaryGeneration StageID = "summary_generation"
)

// CriticalityTier determines the abort-vs-continue policy when a stage fails.
type CriticalityTier string

const (
	// TierRequired aborts the run on any stage failure.
	TierRequired CriticalityTier = "required"
	// TierBestEffort logs the failure, commits neutral outputs, and continues.
	TierBestEffort CriticalityTier = "best-effort"
)

// ManuscriptCategory is the fixed classification vocabulary. Values outside
// this vocabulary are validation violations, never silently coerced.
type ManuscriptCategory string

const (
	CategoryResearchPaper   ManuscriptCategory = "research_paper"
	CategoryReviewArticle   ManuscriptCategory = "review_article"
	CategoryCaseStudy       ManuscriptCategory = "case_study"
	CategoryTechnicalReport ManuscriptCategory = "technical_report"
	CategoryThesis          ManuscriptCategory = "thesis"
	CategoryEditorial       ManuscriptCategory = "editorial"
	CategoryOther           ManuscriptCategory = "other"
)

// ManuscriptCategories returns the full classification vocabulary.
func ManuscriptCategories() []ManuscriptCategory {
	return []ManuscriptCategory{
		CategoryResearchPaper,
		CategoryReviewArticle,
		CategoryCaseStudy,
		CategoryTechnicalReport,
		CategoryThesis,
		CategoryEditorial,
		CategoryOther,
	}
}

// IsValidCategory reports whether a raw value belongs to the vocabulary.
func IsValidCategory(value string) bool {
	for _, c := range ManuscriptCategories() {
		if string(c) == value {
			return true
		}
	}
	return false
}

// Citation represents one extracted reference from the manuscript.
type Citation struct {
	ID         string   `json:"id" yaml:"id"`
	Text       string   `json:"text" yaml:"text"`
	Authors    []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Title      *string  `json:"title,omitempty" yaml:"title,omitempty"`
	Year       *int     `json:"year,omitempty" yaml:"year,omitempty"`
	Journal    *string  `json:"journal,omitempty" yaml:"journal,omitempty"`
	DOI        *string  `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL        *string  `json:"url,omitempty" yaml:"url,omitempty"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
}

// NewCitation creates a citation with a generated ID.
func NewCitation(text string) *Citation {
	return &Citation{
		ID:   uuid.New().String(),
		Text: text,
	}
}

// RunInput is the external run request contract. ContentReference is
// mandatory and must resolve to parsed section data; the other references
// are opaque pass-through identifiers.
type RunInput struct {
	ContentReference   string `json:"content_reference"`
	DocumentReference  string `json:"document_reference,omitempty"`
	RequesterReference string `json:"requester_reference,omitempty"`
}

// RunStatus is the terminal status of one pipeline run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// RunResult carries the run payload: exactly one of the success or error
// shapes is populated, matching the external output contract.
type RunResult struct {
	AnalysisResultID string  `json:"analysis_result_id,omitempty"`
	Error            string  `json:"error,omitempty"`
	ErrorType        string  `json:"error_type,omitempty"`
	Stage            *string `json:"stage,omitempty"`
}

// MarshalJSON renders exactly one of the two wire shapes. The error shape
// always carries a stage field, null when no single stage is attributable.
func (r RunResult) MarshalJSON() ([]byte, error) {
	if r.ErrorType == "" && r.Error == "" {
		return json.Marshal(struct {
			AnalysisResultID string `json:"analysis_result_id"`
		}{r.AnalysisResultID})
	}
	return json.Marshal(struct {
		Error     string  `json:"error"`
		ErrorType string  `json:"error_type"`
		Stage     *string `json:"stage"`
	}{r.Error, r.ErrorType, r.Stage})
}

// RunOutcome is the envelope returned for every run, success or failure.
type RunOutcome struct {
	Status RunStatus `json:"status"`
	Result RunResult `json:"result"`
}

// SuccessOutcome builds the success envelope around a persisted result id.
func SuccessOutcome(analysisResultID string) RunOutcome {
	return RunOutcome{
		Status: RunStatusSuccess,
		Result: RunResult{AnalysisResultID: analysisResultID},
	}
}

// ErrorOutcome builds the error envelope. stage may be empty when the
// failure is not attributable to a single stage.
func ErrorOutcome(errType, message string, stage StageID) RunOutcome {
	result := RunResult{
		Error:     message,
		ErrorType: errType,
	}
	if stage != "" {
		s := string(stage)
		result.Stage = &s
	}
	return RunOutcome{Status: RunStatusError, Result: result}
}

// AnalysisRecord is the final aggregate result of a successful run: the
// union of every stage's committed output plus identifying metadata. It is
// immutable once persisted.
type AnalysisRecord struct {
	ID                 string             `json:"id" yaml:"id"`
	ContentReference   string             `json:"content_reference" yaml:"content_reference"`
	DocumentReference  string             `json:"document_reference,omitempty" yaml:"document_reference,omitempty"`
	RequesterReference string             `json:"requester_reference,omitempty" yaml:"requester_reference,omitempty"`
	ContentOverview    string             `json:"content_overview" yaml:"content_overview"`
	KeyFindings        []string           `json:"key_findings" yaml:"key_findings"`
	Methodology        string             `json:"methodology,omitempty" yaml:"methodology,omitempty"`
	Citations          []*Citation        `json:"citations" yaml:"citations"`
	TotalReferences    int                `json:"total_references" yaml:"total_references"`
	Category           ManuscriptCategory `json:"category" yaml:"category"`
	ConfidenceScore    float64            `json:"confidence_score" yaml:"confidence_score"`
	Summary            string             `json:"summary,omitempty" yaml:"summary,omitempty"`
	KeyPoints          []string           `json:"key_points" yaml:"key_points"`
	AnalyzedAt         time.Time          `json:"analyzed_at" yaml:"analyzed_at"`
	Version            string             `json:"version" yaml:"version"`
}

// NewAnalysisRecord creates a record with a generated ID and timestamp.
// The generated ID always differs from the upstream content reference.
func NewAnalysisRecord(input RunInput) *AnalysisRecord {
	id := uuid.New().String()
	for id == input.ContentReference {
		id = uuid.New().String()
	}
	return &AnalysisRecord{
		ID:                 id,
		ContentReference:   input.ContentReference,
		DocumentReference:  input.DocumentReference,
		RequesterReference: input.RequesterReference,
		KeyFindings:        make([]string, 0),
		Citations:          make([]*Citation, 0),
		KeyPoints:          make([]string, 0),
		AnalyzedAt:         time.Now().UTC(),
		Version:            "1.0",
	}
}

// ParseUUID parses a string UUID and returns an error if invalid.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
