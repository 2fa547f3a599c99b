package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/maps/internal/types"
)

// stubExtractor is a canned content extraction collaborator.
type stubExtractor struct {
	sections types.SectionSet
	err      error
	calls    int
}

func (s *stubExtractor) FetchSections(ctx context.Context, contentReference string) (types.SectionSet, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sections, nil
}

func (s *stubExtractor) Health(ctx context.Context) error { return nil }

// scriptedProvider returns canned outputs or errors per stage. When blockOn
// matches the stage it parks until the context is done, for cancellation and
// timeout tests.
type scriptedProvider struct {
	outputs map[types.StageID]map[string]any
	errs    map[types.StageID]error
	blockOn types.StageID
	calls   []types.StageID
}

func (p *scriptedProvider) Execute(ctx context.Context, stage types.StageID, inputs map[string]any) (map[string]any, error) {
	p.calls = append(p.calls, stage)
	if p.blockOn == stage {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := p.errs[stage]; ok && err != nil {
		return nil, err
	}
	output, ok := p.outputs[stage]
	if !ok {
		return nil, fmt.Errorf("no scripted output for stage %s", stage)
	}
	return output, nil
}

// captureStore records the persisted record and counts store calls.
type captureStore struct {
	calls  int
	record *types.AnalysisRecord
	id     string
	err    error
}

func (s *captureStore) Store(ctx context.Context, record *types.AnalysisRecord) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	s.record = record
	if s.id == "" {
		s.id = uuid.New().String()
	}
	return s.id, nil
}

func (s *captureStore) Health(ctx context.Context) error { return nil }
func (s *captureStore) Close() error                     { return nil }

func sampleSections() types.SectionSet {
	return types.SectionSet{
		types.SectionAbstract:   "We study staged manuscript analysis.",
		types.SectionMethods:    "A controlled experiment over 40 manuscripts.",
		types.SectionResults:    "The pipeline reduced triage time by half.",
		types.SectionReferences: "[1] Doe, J. (2021). Pipelines. [2] Roe, R. (2019). Stages.",
	}
}

// happyOutputs returns gate-valid provider outputs for every stage.
func happyOutputs() map[types.StageID]map[string]any {
	year := 2021
	return map[types.StageID]map[string]any{
		types.StageContentAnalysis: {
			KeyContentOverview: "A controlled study of staged manuscript analysis pipelines and their effect on editorial triage time.",
			KeyKeyFindings:     []string{"triage time halved", "validation catches malformed output"},
			KeyMethodology:     "controlled experiment",
		},
		types.StageCitationAnalysis: {
			KeyCitations: []*types.Citation{
				{ID: "cit-1", Text: "Doe, J. (2021). Pipelines.", Authors: []string{"Doe, J."}, Year: &year, Confidence: 0.9},
			},
			KeyTotalReferences: 2,
		},
		types.StageClassification: {
			KeyCategory:        string(types.CategoryResearchPaper),
			KeyConfidenceScore: 0.88,
		},
		types.StageSummaryGeneration: {
			KeySummary:   "The manuscript reports a controlled experiment showing staged analysis halves editorial triage time.",
			KeyKeyPoints: []string{"staged analysis", "halved triage time"},
		},
	}
}

func newTestController(extractor *stubExtractor, provider *scriptedProvider, store *captureStore) *Controller {
	return NewController(extractor, provider, store, Config{})
}
