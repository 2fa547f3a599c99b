package provider

import (
	"fmt"
	"strings"

	"github.com/example/maps/internal/types"
)

// maxPromptSectionChars bounds the section text embedded in a prompt to
// keep requests under the model's context window.
const maxPromptSectionChars = 6000

// buildContentAnalysisPrompt creates the prompt for the content analysis stage.
func buildContentAnalysisPrompt(sections types.SectionSet) string {
	return fmt.Sprintf(contentAnalysisPrompt, renderSections(sections))
}

// buildCitationAnalysisPrompt creates the prompt for the citation analysis
// stage. The references section dominates; the overview gives the model
// subject-matter context for ambiguous entries.
func buildCitationAnalysisPrompt(sections types.SectionSet, overview string) string {
	references := sections.Get(types.SectionReferences)
	return fmt.Sprintf(citationAnalysisPrompt, truncate(overview, 1000), truncate(references, maxPromptSectionChars))
}

// buildClassificationPrompt creates the prompt for the classification stage.
func buildClassificationPrompt(overview string) string {
	vocabulary := make([]string, 0, len(types.ManuscriptCategories()))
	for _, c := range types.ManuscriptCategories() {
		vocabulary = append(vocabulary, string(c))
	}
	return fmt.Sprintf(classificationPrompt, strings.Join(vocabulary, ", "), truncate(overview, 2000))
}

// buildSummaryPrompt creates the prompt for the summary generation stage.
func buildSummaryPrompt(overview, category string) string {
	return fmt.Sprintf(summaryPrompt, category, truncate(overview, 4000))
}

// renderSections serializes a section set into labeled prompt blocks in
// document order, skipping absent sections.
func renderSections(sections types.SectionSet) string {
	var b strings.Builder
	for _, section := range types.AllSectionTypes() {
		if !sections.Has(section) {
			continue
		}
		b.WriteString(strings.ToUpper(string(section)))
		b.WriteString(":\n")
		b.WriteString(truncate(sections.Get(section), maxPromptSectionChars))
		b.WriteString("\n\n")
	}
	return b.String()
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

const contentAnalysisPrompt = `You are an expert at analyzing academic manuscripts. Analyze the following manuscript sections and extract the core content.

Manuscript Sections:
%s

CRITICAL: You must respond with ONLY valid JSON. Do not include any markdown, explanations, or text outside the JSON structure.

Respond with JSON in this exact format:
{
  "content_overview": "A thorough paragraph describing what the manuscript is about, its approach, and its contribution",
  "key_findings": ["first key finding", "second key finding"],
  "methodology": "One sentence naming the methodology, or empty string if no methodology is described"
}

The content_overview must be a complete, self-contained description of at least several sentences. List every distinct key finding; do not invent findings that are not in the text.`

const citationAnalysisPrompt = `You are an expert at parsing bibliographic references from academic manuscripts.

Manuscript context:
%s

References section:
%s

CRITICAL: You must respond with ONLY valid JSON. Do not include any markdown, explanations, or text outside the JSON structure.

Respond with JSON in this exact format:
{
  "citations": [
    {
      "text": "Smith, J. (2023). Research Methods. Journal Name, 15(2), 123-145.",
      "authors": ["Smith, J."],
      "title": "Research Methods",
      "year": 2023,
      "journal": "Journal Name",
      "doi": "10.1000/example",
      "confidence": 0.95
    }
  ],
  "total_references": 1
}

Parse every reference entry. Omit fields you cannot determine rather than guessing. total_references is the count of entries in the references section, including any you could not parse. If the references section is empty, return an empty citations array and total_references of 0.`

const classificationPrompt = `Classify the following manuscript into exactly one of these categories:
%s

Manuscript overview:
%s

CRITICAL: You must respond with ONLY valid JSON. Do not include any markdown, explanations, or text outside the JSON structure.

Respond with JSON in this exact format:
{
  "category": "research_paper",
  "confidence_score": 0.95,
  "reasoning": "Brief explanation of the classification decision"
}

The category must be one of the listed values. confidence_score must be between 0 and 1.`

const summaryPrompt = `You are an expert at summarizing academic manuscripts for editorial triage.

Manuscript category: %s

Manuscript overview:
%s

CRITICAL: You must respond with ONLY valid JSON. Do not include any markdown, explanations, or text outside the JSON structure.

Respond with JSON in this exact format:
{
  "summary": "A reader-facing summary of several sentences covering the manuscript's purpose, approach, and conclusions",
  "key_points": ["first takeaway", "second takeaway"]
}

The summary must stand alone without the original text. Key points are short phrases, most important first.`
