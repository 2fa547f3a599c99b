package pipeline

import (
	"fmt"

	"github.com/example/maps/internal/types"
)

// assembleRecord projects the final shared context snapshot into the
// aggregate result shape: one field per stage-declared output key plus the
// upstream reference, a freshly generated identifier, and a timestamp.
//
// Assembly is a pure transformation; running the pipeline twice over
// identical inputs with a deterministic provider yields records that differ
// only in the generated identifier and timestamp.
func assembleRecord(input types.RunInput, snapshot map[string]any) (*types.AnalysisRecord, error) {
	record := types.NewAnalysisRecord(input)

	var err error
	if record.ContentOverview, err = asString(snapshot, KeyContentOverview); err != nil {
		return nil, err
	}
	if record.KeyFindings, err = asStringSlice(snapshot, KeyKeyFindings); err != nil {
		return nil, err
	}
	if record.Methodology, err = asString(snapshot, KeyMethodology); err != nil {
		return nil, err
	}
	if record.Citations, err = asCitations(snapshot, KeyCitations); err != nil {
		return nil, err
	}
	if record.TotalReferences, err = asInt(snapshot, KeyTotalReferences); err != nil {
		return nil, err
	}
	category, err := asString(snapshot, KeyCategory)
	if err != nil {
		return nil, err
	}
	record.Category = types.ManuscriptCategory(category)
	if record.ConfidenceScore, err = asFloat(snapshot, KeyConfidenceScore); err != nil {
		return nil, err
	}
	if record.Summary, err = asString(snapshot, KeySummary); err != nil {
		return nil, err
	}
	if record.KeyPoints, err = asStringSlice(snapshot, KeyKeyPoints); err != nil {
		return nil, err
	}

	return record, nil
}

func asString(snapshot map[string]any, key string) (string, error) {
	value, exists := snapshot[key]
	if !exists {
		return "", &types.MissingKeyError{Key: key}
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("key %q: expected string, got %T", key, value)
	}
	return text, nil
}

func asStringSlice(snapshot map[string]any, key string) ([]string, error) {
	value, exists := snapshot[key]
	if !exists {
		return nil, &types.MissingKeyError{Key: key}
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			text, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("key %q: expected string element, got %T", key, item)
			}
			items = append(items, text)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("key %q: expected string list, got %T", key, value)
	}
}

func asCitations(snapshot map[string]any, key string) ([]*types.Citation, error) {
	value, exists := snapshot[key]
	if !exists {
		return nil, &types.MissingKeyError{Key: key}
	}
	citations, ok := value.([]*types.Citation)
	if !ok {
		return nil, fmt.Errorf("key %q: expected citation list, got %T", key, value)
	}
	return citations, nil
}

func asInt(snapshot map[string]any, key string) (int, error) {
	value, exists := snapshot[key]
	if !exists {
		return 0, &types.MissingKeyError{Key: key}
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("key %q: expected integer, got %T", key, value)
	}
}

func asFloat(snapshot map[string]any, key string) (float64, error) {
	value, exists := snapshot[key]
	if !exists {
		return 0, &types.MissingKeyError{Key: key}
	}
	num, ok := toFloat(value)
	if !ok {
		return 0, fmt.Errorf("key %q: expected numeric value, got %T", key, value)
	}
	return num, nil
}
