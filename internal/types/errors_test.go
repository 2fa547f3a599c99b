package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing key",
			err:  &MissingKeyError{Key: "content_overview"},
			want: ErrorTypeMissingUpstreamData,
		},
		{
			name: "stage error carries its own tag",
			err:  NewStageError(ErrorTypeValidationFailure, StageClassification, "bad output", nil),
			want: ErrorTypeValidationFailure,
		},
		{
			name: "persistence error",
			err:  &PersistenceError{Message: "store unreachable"},
			want: ErrorTypePersistenceFailure,
		},
		{
			name: "cancelled sentinel",
			err:  ErrCancelled,
			want: ErrorTypeCancelled,
		},
		{
			name: "wrapped cancelled sentinel",
			err:  fmt.Errorf("run aborted: %w", ErrCancelled),
			want: ErrorTypeCancelled,
		},
		{
			name: "wrapped missing key",
			err:  WrapError(&MissingKeyError{Key: "sections"}, "stage %s", StageContentAnalysis),
			want: ErrorTypeMissingUpstreamData,
		},
		{
			name: "unclassified error",
			err:  errors.New("boom"),
			want: ErrorTypeStageExecutionFailure,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorTypeOf(tc.err))
		})
	}
}

func TestStageErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStageError(ErrorTypeStageExecutionFailure, StageContentAnalysis, "model call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "content_analysis")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStageErrorRendersViolations(t *testing.T) {
	err := &StageError{
		Type:  ErrorTypeValidationFailure,
		Stage: StageClassification,
		Violations: []Violation{
			{Field: "category", Rule: RuleVocabulary, Message: "unknown category \"novel\""},
			{Field: "confidence_score", Rule: RuleBounds, Message: "1.5 outside [0, 1]"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "category[vocabulary]")
	assert.Contains(t, msg, "confidence_score[bounds]")
}

func TestContextViolationError(t *testing.T) {
	err := &ContextViolationError{Key: "citations", Owner: StageCitationAnalysis, Writer: StageClassification}
	assert.Contains(t, err.Error(), "citations")
	assert.Contains(t, err.Error(), string(StageCitationAnalysis))
	assert.Contains(t, err.Error(), string(StageClassification))
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ignored"))
}
