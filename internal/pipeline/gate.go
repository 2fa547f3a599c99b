package pipeline

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/example/maps/internal/types"
)

// FieldRule is one declarative constraint on a stage output field.
type FieldRule struct {
	Field string
	Rule  string

	// AllowEmpty marks presence-checked collections that may legitimately be
	// empty, e.g. a citation list when the manuscript has no references.
	AllowEmpty bool

	// Min and Max bound numeric fields (inclusive).
	Min float64
	Max float64

	// Vocabulary is the fixed value set for enum-membership checks.
	Vocabulary []string

	// MinLength is the minimum trimmed length for generated free text.
	MinLength int
}

// Gate validates a stage's raw output against its declared rules before the
// output is committed to the shared context. All violations are collected,
// not just the first, so the controller can report every reason at once.
// The gate is pure; it never mutates the shared context.
type Gate struct {
	rules map[types.StageID][]FieldRule
}

// NewGate builds the default rule set for the stage variants. Minimum text
// lengths for generated overview and summary text are configurable.
func NewGate(minOverviewLength, minSummaryLength int) *Gate {
	vocabulary := make([]string, 0)
	for _, c := range types.ManuscriptCategories() {
		vocabulary = append(vocabulary, string(c))
	}

	return &Gate{
		rules: map[types.StageID][]FieldRule{
			types.StageContentAnalysis: {
				{Field: KeyContentOverview, Rule: types.RulePresence},
				{Field: KeyContentOverview, Rule: types.RuleMinLength, MinLength: minOverviewLength},
				{Field: KeyKeyFindings, Rule: types.RulePresence},
				{Field: KeyMethodology, Rule: types.RulePresence, AllowEmpty: true},
			},
			types.StageCitationAnalysis: {
				{Field: KeyCitations, Rule: types.RulePresence, AllowEmpty: true},
				{Field: KeyTotalReferences, Rule: types.RuleBounds, Min: 0, Max: maxReferenceCount},
			},
			types.StageClassification: {
				{Field: KeyCategory, Rule: types.RuleVocabulary, Vocabulary: vocabulary},
				{Field: KeyConfidenceScore, Rule: types.RuleBounds, Min: 0.0, Max: 1.0},
			},
			types.StageSummaryGeneration: {
				{Field: KeySummary, Rule: types.RulePresence},
				{Field: KeySummary, Rule: types.RuleMinLength, MinLength: minSummaryLength},
				{Field: KeyKeyPoints, Rule: types.RulePresence},
			},
		},
	}
}

// maxReferenceCount is a sanity ceiling for the total-reference counter.
const maxReferenceCount = 100000

// Rules returns the rule list declared for a stage.
func (g *Gate) Rules(stage types.StageID) []FieldRule {
	return g.rules[stage]
}

// Validate evaluates every declared rule for the stage against the raw
// output and returns all violations found.
func (g *Gate) Validate(stage types.StageID, output map[string]any) []types.Violation {
	var violations []types.Violation

	for _, rule := range g.rules[stage] {
		value, exists := output[rule.Field]
		if !exists {
			violations = append(violations, types.Violation{
				Field:   rule.Field,
				Rule:    types.RulePresence,
				Message: "field absent from stage output",
			})
			continue
		}

		switch rule.Rule {
		case types.RulePresence:
			if v := checkPresence(rule, value); v != nil {
				violations = append(violations, *v)
			}
		case types.RuleBounds:
			if v := checkBounds(rule, value); v != nil {
				violations = append(violations, *v)
			}
		case types.RuleVocabulary:
			if v := checkVocabulary(rule, value); v != nil {
				violations = append(violations, *v)
			}
		case types.RuleMinLength:
			if v := checkMinLength(rule, value); v != nil {
				violations = append(violations, *v)
			}
		}
	}

	return violations
}

func checkPresence(rule FieldRule, value any) *types.Violation {
	if value == nil {
		if rule.AllowEmpty {
			return nil
		}
		return &types.Violation{Field: rule.Field, Rule: types.RulePresence, Message: "value is nil"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" && !rule.AllowEmpty {
			return &types.Violation{Field: rule.Field, Rule: types.RulePresence, Message: "value is empty"}
		}
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
			if rv.Len() == 0 && !rule.AllowEmpty {
				return &types.Violation{Field: rule.Field, Rule: types.RulePresence, Message: "collection is empty"}
			}
		}
	}
	return nil
}

func checkBounds(rule FieldRule, value any) *types.Violation {
	num, ok := toFloat(value)
	if !ok {
		return &types.Violation{
			Field:   rule.Field,
			Rule:    types.RuleType,
			Message: fmt.Sprintf("expected numeric value, got %T", value),
		}
	}
	if num < rule.Min || num > rule.Max {
		return &types.Violation{
			Field:   rule.Field,
			Rule:    types.RuleBounds,
			Message: fmt.Sprintf("value %v outside [%v, %v]", num, rule.Min, rule.Max),
		}
	}
	return nil
}

func checkVocabulary(rule FieldRule, value any) *types.Violation {
	text, ok := value.(string)
	if !ok {
		return &types.Violation{
			Field:   rule.Field,
			Rule:    types.RuleType,
			Message: fmt.Sprintf("expected string value, got %T", value),
		}
	}
	for _, allowed := range rule.Vocabulary {
		if text == allowed {
			return nil
		}
	}
	return &types.Violation{
		Field:   rule.Field,
		Rule:    types.RuleVocabulary,
		Message: fmt.Sprintf("value %q not in vocabulary %v", text, rule.Vocabulary),
	}
}

func checkMinLength(rule FieldRule, value any) *types.Violation {
	text, ok := value.(string)
	if !ok {
		return &types.Violation{
			Field:   rule.Field,
			Rule:    types.RuleType,
			Message: fmt.Sprintf("expected string value, got %T", value),
		}
	}
	if len(strings.TrimSpace(text)) < rule.MinLength {
		return &types.Violation{
			Field:   rule.Field,
			Rule:    types.RuleMinLength,
			Message: fmt.Sprintf("text length %d below minimum %d", len(strings.TrimSpace(text)), rule.MinLength),
		}
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
