package provider

import (
	"encoding/json"
	"regexp"
	"strings"
)

// JSONCleaner handles cleaning and preprocessing of LLM responses to extract valid JSON
type JSONCleaner struct {
	FixCommonIssues bool
}

// NewJSONCleaner creates a new JSON cleaner with default settings
func NewJSONCleaner() *JSONCleaner {
	return &JSONCleaner{
		FixCommonIssues: true,
	}
}

// CleanResponse performs comprehensive cleaning of an LLM response to extract valid JSON
func (jc *JSONCleaner) CleanResponse(response string) string {
	if response == "" {
		return ""
	}

	// Step 1: Basic whitespace and format cleaning
	cleaned := jc.basicClean(response)

	// Step 2: Remove markdown code blocks
	cleaned = jc.removeMarkdownBlocks(cleaned)

	// Step 3: Remove explanatory text before/after JSON
	cleaned = jc.removeExplanatoryText(cleaned)

	// Step 4: Extract JSON object/array (only if needed)
	if !json.Valid([]byte(cleaned)) {
		extracted := jc.extractJSONStructure(cleaned)
		if extracted != "" {
			cleaned = extracted
		}
	}

	// Step 5: Fix common JSON issues
	if jc.FixCommonIssues && !json.Valid([]byte(cleaned)) {
		cleaned = jc.fixCommonJSONIssues(cleaned)
	}

	return strings.TrimSpace(cleaned)
}

// basicClean performs basic string cleaning
func (jc *JSONCleaner) basicClean(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}

// removeMarkdownBlocks removes markdown code blocks
func (jc *JSONCleaner) removeMarkdownBlocks(text string) string {
	jsonBlockRegex := regexp.MustCompile("```(?:json)?\n?([\\s\\S]*?)\n?```")
	matches := jsonBlockRegex.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	return strings.TrimSpace(text)
}

// removeExplanatoryText removes common explanatory prefixes and suffixes
func (jc *JSONCleaner) removeExplanatoryText(text string) string {
	prefixes := []string{
		"Here's the JSON response:",
		"Here is the JSON response:",
		"The JSON output is:",
		"JSON response:",
		"Response:",
		"Output:",
		"Result:",
		"Here's the analysis:",
		"Here is the analysis:",
		"Based on the manuscript:",
	}

	lowerText := strings.ToLower(text)
	for _, prefix := range prefixes {
		lowerPrefix := strings.ToLower(prefix)
		if strings.HasPrefix(lowerText, lowerPrefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}

	suffixes := []string{
		"This completes the analysis.",
		"End of JSON response.",
		"Hope this helps!",
	}

	lowerText = strings.ToLower(text)
	for _, suffix := range suffixes {
		lowerSuffix := strings.ToLower(suffix)
		if strings.HasSuffix(lowerText, lowerSuffix) {
			text = strings.TrimSpace(text[:len(text)-len(suffix)])
			break
		}
	}

	return text
}

// extractJSONStructure extracts the main JSON structure from the text
func (jc *JSONCleaner) extractJSONStructure(text string) string {
	var start, end int = -1, -1
	var braceCount, bracketCount int
	var startedWithBrace bool

	for i, char := range text {
		switch char {
		case '{':
			if start == -1 {
				start = i
				startedWithBrace = true
			}
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 && start != -1 && startedWithBrace {
				end = i + 1
				goto found
			}
		case '[':
			if start == -1 {
				start = i
				startedWithBrace = false
			}
			bracketCount++
		case ']':
			bracketCount--
			if bracketCount == 0 && start != -1 && !startedWithBrace {
				end = i + 1
				goto found
			}
		}
	}

found:
	if start != -1 && end != -1 && end <= len(text) {
		return text[start:end]
	}
	return text
}

// fixCommonJSONIssues fixes common JSON formatting problems
func (jc *JSONCleaner) fixCommonJSONIssues(text string) string {
	// Fix trailing commas
	commaRegex := regexp.MustCompile(`,(\s*[}\]])`)
	text = commaRegex.ReplaceAllString(text, "$1")

	// Fix missing quotes around object keys
	keyRegex := regexp.MustCompile(`(\{|\,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	text = keyRegex.ReplaceAllString(text, `$1"$2":`)

	// Fix Python-style literals
	text = regexp.MustCompile(`:\s*True\b`).ReplaceAllString(text, ": true")
	text = regexp.MustCompile(`:\s*False\b`).ReplaceAllString(text, ": false")
	text = regexp.MustCompile(`:\s*None\b`).ReplaceAllString(text, ": null")
	text = regexp.MustCompile(`:\s*undefined\b`).ReplaceAllString(text, ": null")

	return text
}
