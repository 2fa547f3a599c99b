package pipeline

import (
	"time"

	"github.com/example/maps/internal/types"
)

// Shared context keys produced and consumed by the analysis stages. The
// intake pseudo-stage seeds KeySections before the first stage executes.
const (
	KeySections        = "sections"
	KeyContentOverview = "content_overview"
	KeyKeyFindings     = "key_findings"
	KeyMethodology     = "methodology"
	KeyCitations       = "citations"
	KeyTotalReferences = "total_references"
	KeyCategory        = "category"
	KeyConfidenceScore = "confidence_score"
	KeySummary         = "summary"
	KeyKeyPoints       = "key_points"
)

// Descriptor declares one analysis stage: its ordering position, required
// input keys, produced output keys, criticality tier, time budget, and the
// neutral values committed when a best-effort stage is skipped.
//
// Descriptors are immutable after process startup; the tier field is the
// single source of truth for abort-vs-continue decisions.
type Descriptor struct {
	ID      types.StageID
	Ordinal int
	Tier    types.CriticalityTier
	Inputs  []string
	Outputs []string
	Timeout time.Duration

	// Neutral maps each output key to the empty value committed when the
	// stage is skipped. Every declared output key must have an entry.
	Neutral map[string]any
}

// DefaultStages returns the ordered stage set
// {ContentAnalysis, CitationAnalysis, Classification, SummaryGeneration}.
// stageTimeout bounds each Stage Logic Provider call.
func DefaultStages(stageTimeout time.Duration) []Descriptor {
	return []Descriptor{
		{
			ID:      types.StageContentAnalysis,
			Ordinal: 1,
			Tier:    types.TierRequired,
			Inputs:  []string{KeySections},
			Outputs: []string{KeyContentOverview, KeyKeyFindings, KeyMethodology},
			Timeout: stageTimeout,
			Neutral: map[string]any{
				KeyContentOverview: "",
				KeyKeyFindings:     []string{},
				KeyMethodology:     "",
			},
		},
		{
			ID:      types.StageCitationAnalysis,
			Ordinal: 2,
			Tier:    types.TierBestEffort,
			Inputs:  []string{KeySections, KeyContentOverview},
			Outputs: []string{KeyCitations, KeyTotalReferences},
			Timeout: stageTimeout,
			Neutral: map[string]any{
				KeyCitations:       []*types.Citation{},
				KeyTotalReferences: 0,
			},
		},
		{
			ID:      types.StageClassification,
			Ordinal: 3,
			Tier:    types.TierRequired,
			Inputs:  []string{KeyContentOverview},
			Outputs: []string{KeyCategory, KeyConfidenceScore},
			Timeout: stageTimeout,
			Neutral: map[string]any{
				KeyCategory:        string(types.CategoryOther),
				KeyConfidenceScore: 0.0,
			},
		},
		{
			ID:      types.StageSummaryGeneration,
			Ordinal: 4,
			Tier:    types.TierBestEffort,
			Inputs:  []string{KeyContentOverview, KeyCategory},
			Outputs: []string{KeySummary, KeyKeyPoints},
			Timeout: stageTimeout,
			Neutral: map[string]any{
				KeySummary:   "",
				KeyKeyPoints: []string{},
			},
		},
	}
}

// StageStatus is the outcome classification of one executor invocation.
type StageStatus string

const (
	// StageCommitted means the validated output was written to the context.
	StageCommitted StageStatus = "committed"
	// StageRejected means the stage failed and nothing was written.
	StageRejected StageStatus = "rejected"
	// StageSkipped means a best-effort stage failed and neutral values were
	// committed in place of its output.
	StageSkipped StageStatus = "skipped"
)

// StageResult is the outcome of one stage executor invocation.
type StageResult struct {
	Stage      types.StageID     `json:"stage"`
	Status     StageStatus       `json:"status"`
	Output     map[string]any    `json:"output,omitempty"`
	Violations []types.Violation `json:"violations,omitempty"`
	Duration   time.Duration     `json:"duration"`
}
