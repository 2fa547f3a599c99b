package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error type tags form the failure taxonomy reported to callers.
const (
	ErrorTypeMissingUpstreamData   = "missing_upstream_data"
	ErrorTypeValidationFailure     = "validation_failure"
	ErrorTypeStageExecutionFailure = "stage_execution_failure"
	ErrorTypePersistenceFailure    = "persistence_failure"
	ErrorTypeCancelled             = "cancelled"
)

// Validation rule identifiers used by violations.
const (
	RulePresence   = "presence"
	RuleBounds     = "bounds"
	RuleVocabulary = "vocabulary"
	RuleMinLength  = "min_length"
	RuleType       = "type"
)

// Violation records one failed validation rule on a stage output field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s[%s]: %s", v.Field, v.Rule, v.Message)
}

// JoinViolations renders a violation list as a single human-readable string.
func JoinViolations(violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// MissingKeyError signals that a declared required-input key is absent from
// the shared context. This is a hard failure regardless of criticality tier.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: required key %q absent from shared context", ErrorTypeMissingUpstreamData, e.Key)
}

// ContextViolationError signals a cross-stage overwrite attempt on the shared
// context. This is a programming-contract violation, not a runtime input error.
type ContextViolationError struct {
	Key    string
	Owner  StageID
	Writer StageID
}

func (e *ContextViolationError) Error() string {
	return fmt.Sprintf("context contract violation: stage %q attempted to overwrite key %q owned by stage %q",
		e.Writer, e.Key, e.Owner)
}

// StageError represents a failure attributable to one pipeline stage.
type StageError struct {
	Type       string
	Stage      StageID
	Message    string
	Violations []Violation
	Cause      error
}

func (e *StageError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: stage %s: %s", e.Type, e.Stage, JoinViolations(e.Violations))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: stage %s: %s (caused by: %v)", e.Type, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: stage %s: %s", e.Type, e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError creates a StageError with the given taxonomy tag.
func NewStageError(errType string, stage StageID, message string, cause error) *StageError {
	return &StageError{
		Type:    errType,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// PersistenceError signals that the final store call failed. Always fatal
// to the run regardless of which stages succeeded.
type PersistenceError struct {
	Message string
	Cause   error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", ErrorTypePersistenceFailure, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrorTypePersistenceFailure, e.Message)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// ErrCancelled marks externally cancelled runs.
var ErrCancelled = errors.New(ErrorTypeCancelled + ": run cancelled")

// ErrorTypeOf maps an error to its taxonomy tag, defaulting to
// stage_execution_failure for unclassified errors.
func ErrorTypeOf(err error) string {
	var missingKey *MissingKeyError
	if errors.As(err, &missingKey) {
		return ErrorTypeMissingUpstreamData
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Type
	}
	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return ErrorTypePersistenceFailure
	}
	if errors.Is(err, ErrCancelled) {
		return ErrorTypeCancelled
	}
	return ErrorTypeStageExecutionFailure
}

// WrapError wraps an error with additional context using fmt.Errorf with %w verb.
func WrapError(err error, message string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(message+": %w", append(args, err)...)
}
