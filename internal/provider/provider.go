// Package provider implements the stage logic behind the analysis pipeline:
// prompt construction, LLM calls, response cleaning, and conversion of model
// output into the pipeline's context keys.
//
// The provider never validates its own output beyond structural parsing;
// the pipeline's validation gate is the single authority on output quality.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/pipeline"
	"github.com/example/maps/internal/types"
)

// Provider executes analysis stages against an LLM service.
type Provider struct {
	llm     interfaces.LLMClient
	doi     interfaces.DOIResolver
	cleaner *JSONCleaner
	options interfaces.LLMOptions
	logger  *types.StandardLogger
}

// NewProvider creates a stage logic provider around an LLM client.
func NewProvider(llm interfaces.LLMClient, options interfaces.LLMOptions) *Provider {
	return &Provider{
		llm:     llm,
		cleaner: NewJSONCleaner(),
		options: options,
		logger:  types.NewStandardLogger("provider"),
	}
}

// WithDOIResolver enables best-effort citation enrichment. A nil resolver
// leaves enrichment disabled.
func (p *Provider) WithDOIResolver(resolver interfaces.DOIResolver) *Provider {
	p.doi = resolver
	return p
}

// Execute dispatches one stage to its handler.
func (p *Provider) Execute(ctx context.Context, stage types.StageID, inputs map[string]any) (map[string]any, error) {
	switch stage {
	case types.StageContentAnalysis:
		return p.contentAnalysis(ctx, inputs)
	case types.StageCitationAnalysis:
		return p.citationAnalysis(ctx, inputs)
	case types.StageClassification:
		return p.classification(ctx, inputs)
	case types.StageSummaryGeneration:
		return p.summaryGeneration(ctx, inputs)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

type contentAnalysisResponse struct {
	ContentOverview string   `json:"content_overview"`
	KeyFindings     []string `json:"key_findings"`
	Methodology     string   `json:"methodology"`
}

func (p *Provider) contentAnalysis(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	sections, err := sectionsInput(inputs)
	if err != nil {
		return nil, err
	}
	if sections.IsEmpty() {
		return nil, fmt.Errorf("no section content available for analysis")
	}

	var parsed contentAnalysisResponse
	if err := p.completeJSON(ctx, buildContentAnalysisPrompt(sections), &parsed); err != nil {
		return nil, err
	}

	if parsed.KeyFindings == nil {
		parsed.KeyFindings = []string{}
	}
	return map[string]any{
		pipeline.KeyContentOverview: strings.TrimSpace(parsed.ContentOverview),
		pipeline.KeyKeyFindings:     parsed.KeyFindings,
		pipeline.KeyMethodology:     strings.TrimSpace(parsed.Methodology),
	}, nil
}

type citationItem struct {
	Text       string   `json:"text"`
	Authors    []string `json:"authors"`
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	Journal    string   `json:"journal"`
	DOI        string   `json:"doi"`
	URL        string   `json:"url"`
	Confidence float64  `json:"confidence"`
}

type citationAnalysisResponse struct {
	Citations       []citationItem `json:"citations"`
	TotalReferences int            `json:"total_references"`
}

func (p *Provider) citationAnalysis(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	sections, err := sectionsInput(inputs)
	if err != nil {
		return nil, err
	}
	overview, _ := inputs[pipeline.KeyContentOverview].(string)

	// A manuscript with no references section yields an empty citation set
	// without touching the model.
	if !sections.Has(types.SectionReferences) {
		return map[string]any{
			pipeline.KeyCitations:       []*types.Citation{},
			pipeline.KeyTotalReferences: 0,
		}, nil
	}

	var parsed citationAnalysisResponse
	if err := p.completeJSON(ctx, buildCitationAnalysisPrompt(sections, overview), &parsed); err != nil {
		return nil, err
	}

	citations := make([]*types.Citation, 0, len(parsed.Citations))
	for _, item := range parsed.Citations {
		citation := types.NewCitation(item.Text)
		citation.Authors = item.Authors
		citation.Title = stringPtr(item.Title)
		citation.Year = intPtr(item.Year)
		citation.Journal = stringPtr(item.Journal)
		citation.DOI = stringPtr(item.DOI)
		citation.URL = stringPtr(item.URL)
		citation.Confidence = item.Confidence
		p.enrichCitation(ctx, citation)
		citations = append(citations, citation)
	}

	total := parsed.TotalReferences
	if total < len(citations) {
		total = len(citations)
	}
	return map[string]any{
		pipeline.KeyCitations:       citations,
		pipeline.KeyTotalReferences: total,
	}, nil
}

// enrichCitation fills missing bibliographic fields from the DOI registry.
// Lookup failures are logged and ignored; enrichment never fails a stage.
func (p *Provider) enrichCitation(ctx context.Context, citation *types.Citation) {
	if p.doi == nil || citation.DOI == nil {
		return
	}
	meta, err := p.doi.ResolveDOI(ctx, *citation.DOI)
	if err != nil {
		p.logger.WithOperation("doi_enrichment").
			WithMetadata("doi", *citation.DOI).
			Warn(ctx, "DOI lookup failed")
		return
	}
	if citation.Title == nil && meta.Title != "" {
		citation.Title = &meta.Title
	}
	if citation.Year == nil && meta.Year > 0 {
		year := meta.Year
		citation.Year = &year
	}
	if citation.Journal == nil && meta.Journal != "" {
		citation.Journal = &meta.Journal
	}
	if citation.URL == nil && meta.URL != "" {
		citation.URL = &meta.URL
	}
	if len(citation.Authors) == 0 {
		citation.Authors = meta.Authors
	}
}

type classificationResponse struct {
	Category        string  `json:"category"`
	ConfidenceScore float64 `json:"confidence_score"`
	Reasoning       string  `json:"reasoning"`
}

func (p *Provider) classification(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	overview, _ := inputs[pipeline.KeyContentOverview].(string)

	var parsed classificationResponse
	if err := p.completeJSON(ctx, buildClassificationPrompt(overview), &parsed); err != nil {
		return nil, err
	}

	// Normalize casing and padding; unknown values pass through untouched
	// for the gate to reject.
	category := strings.ToLower(strings.TrimSpace(parsed.Category))
	return map[string]any{
		pipeline.KeyCategory:        category,
		pipeline.KeyConfidenceScore: parsed.ConfidenceScore,
	}, nil
}

type summaryResponse struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

func (p *Provider) summaryGeneration(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	overview, _ := inputs[pipeline.KeyContentOverview].(string)
	category, _ := inputs[pipeline.KeyCategory].(string)

	var parsed summaryResponse
	if err := p.completeJSON(ctx, buildSummaryPrompt(overview, category), &parsed); err != nil {
		return nil, err
	}

	if parsed.KeyPoints == nil {
		parsed.KeyPoints = []string{}
	}
	return map[string]any{
		pipeline.KeySummary:   strings.TrimSpace(parsed.Summary),
		pipeline.KeyKeyPoints: parsed.KeyPoints,
	}, nil
}

// completeJSON runs one completion and parses the cleaned response into out.
func (p *Provider) completeJSON(ctx context.Context, prompt string, out any) error {
	response, err := p.llm.Complete(ctx, prompt, &p.options)
	if err != nil {
		return fmt.Errorf("LLM completion failed: %w", err)
	}

	cleaned := p.cleaner.CleanResponse(response)
	if cleaned == "" {
		return fmt.Errorf("no JSON found in LLM response")
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		preview := cleaned
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return fmt.Errorf("failed to parse LLM response JSON: %w (response: %s)", err, preview)
	}
	return nil
}

func sectionsInput(inputs map[string]any) (types.SectionSet, error) {
	sections, ok := inputs[pipeline.KeySections].(types.SectionSet)
	if !ok {
		return nil, fmt.Errorf("sections input has unexpected type %T", inputs[pipeline.KeySections])
	}
	return sections, nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
