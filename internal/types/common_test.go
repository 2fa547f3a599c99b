package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionSet(t *testing.T) {
	sections := SectionSet{
		SectionAbstract:   "An abstract.",
		SectionReferences: "",
	}

	assert.True(t, sections.Has(SectionAbstract))
	assert.False(t, sections.Has(SectionReferences))
	assert.False(t, sections.Has(SectionMethods))
	assert.Equal(t, "An abstract.", sections.Get(SectionAbstract))
	assert.Equal(t, "", sections.Get(SectionMethods))
	assert.False(t, sections.IsEmpty())

	assert.True(t, SectionSet{}.IsEmpty())
	assert.True(t, SectionSet{SectionMethods: ""}.IsEmpty())
}

func TestIsValidCategory(t *testing.T) {
	for _, c := range ManuscriptCategories() {
		assert.True(t, IsValidCategory(string(c)), string(c))
	}
	assert.False(t, IsValidCategory("novel"))
	assert.False(t, IsValidCategory(""))
	assert.False(t, IsValidCategory("Research_Paper"))
}

func TestSuccessOutcomeShape(t *testing.T) {
	outcome := SuccessOutcome("result-42")

	data, err := json.Marshal(outcome)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "success", decoded["status"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "result-42", result["analysis_result_id"])
	// No error fields leak into the success shape.
	assert.NotContains(t, result, "error")
	assert.NotContains(t, result, "error_type")
	assert.NotContains(t, result, "stage")
}

func TestErrorOutcomeShape(t *testing.T) {
	outcome := ErrorOutcome(ErrorTypeValidationFailure, "confidence out of range", StageClassification)

	data, err := json.Marshal(outcome)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "error", decoded["status"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "confidence out of range", result["error"])
	assert.Equal(t, ErrorTypeValidationFailure, result["error_type"])
	assert.Equal(t, string(StageClassification), result["stage"])
	assert.NotContains(t, result, "analysis_result_id")
}

func TestErrorOutcomeWithoutStage(t *testing.T) {
	outcome := ErrorOutcome(ErrorTypePersistenceFailure, "store unreachable", "")
	assert.Nil(t, outcome.Result.Stage)

	// The wire shape still carries the stage field, as an explicit null.
	data, err := json.Marshal(outcome)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	result := decoded["result"].(map[string]any)
	require.Contains(t, result, "stage")
	assert.Nil(t, result["stage"])
}

func TestNewAnalysisRecord(t *testing.T) {
	input := RunInput{
		ContentReference:   "content-9",
		DocumentReference:  "doc-9",
		RequesterReference: "user-9",
	}
	record := NewAnalysisRecord(input)

	_, err := ParseUUID(record.ID)
	require.NoError(t, err)
	assert.NotEqual(t, input.ContentReference, record.ID)
	assert.Equal(t, "content-9", record.ContentReference)
	assert.Equal(t, "doc-9", record.DocumentReference)
	assert.Equal(t, "user-9", record.RequesterReference)
	assert.Equal(t, "1.0", record.Version)
	assert.False(t, record.AnalyzedAt.IsZero())

	// Slice fields start empty, not nil, so the persisted JSON carries [].
	assert.NotNil(t, record.KeyFindings)
	assert.NotNil(t, record.Citations)
	assert.NotNil(t, record.KeyPoints)
}

func TestNewAnalysisRecordIDsAreUnique(t *testing.T) {
	a := NewAnalysisRecord(RunInput{ContentReference: "content-9"})
	b := NewAnalysisRecord(RunInput{ContentReference: "content-9"})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewCitation(t *testing.T) {
	c := NewCitation("Doe, J. (2021). Pipelines.")
	_, err := ParseUUID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doe, J. (2021). Pipelines.", c.Text)
	assert.Nil(t, c.Year)
}
