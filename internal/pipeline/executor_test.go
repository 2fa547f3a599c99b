package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/maps/internal/types"
)

func stageByID(t *testing.T, id types.StageID) Descriptor {
	t.Helper()
	for _, desc := range DefaultStages(time.Second) {
		if desc.ID == id {
			return desc
		}
	}
	t.Fatalf("unknown stage %s", id)
	return Descriptor{}
}

func TestExecutorCommitsValidOutput(t *testing.T) {
	provider := &scriptedProvider{outputs: happyOutputs()}
	executor := NewExecutor(provider, NewGate(40, 40))

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))

	result, err := executor.Execute(context.Background(), stageByID(t, types.StageContentAnalysis), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageCommitted, result.Status)
	assert.Empty(t, result.Violations)

	for _, key := range []string{KeyContentOverview, KeyKeyFindings, KeyMethodology} {
		assert.True(t, sctx.Has(key), "key %s not committed", key)
		assert.Equal(t, types.StageContentAnalysis, sctx.Owner(key))
	}
}

func TestExecutorRejectsOnMissingUpstreamData(t *testing.T) {
	provider := &scriptedProvider{outputs: happyOutputs()}
	executor := NewExecutor(provider, NewGate(40, 40))

	// CitationAnalysis before ContentAnalysis committed: content_overview
	// was never produced.
	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))

	result, err := executor.Execute(context.Background(), stageByID(t, types.StageCitationAnalysis), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, result.Status)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, KeyContentOverview, result.Violations[0].Field)
	assert.Equal(t, types.ErrorTypeMissingUpstreamData, result.Violations[0].Rule)

	// Provider must never run without its declared inputs; missing input is
	// a hard failure even on a best-effort stage.
	assert.Empty(t, provider.calls)
	assert.False(t, sctx.Has(KeyCitations))
}

func TestExecutorRejectsRequiredStageOnProviderError(t *testing.T) {
	provider := &scriptedProvider{
		outputs: happyOutputs(),
		errs:    map[types.StageID]error{types.StageContentAnalysis: errors.New("model unavailable")},
	}
	executor := NewExecutor(provider, NewGate(40, 40))

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))

	result, err := executor.Execute(context.Background(), stageByID(t, types.StageContentAnalysis), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, result.Status)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, types.ErrorTypeStageExecutionFailure, result.Violations[0].Rule)

	// No partial writes on rejection.
	assert.False(t, sctx.Has(KeyContentOverview))
}

func TestExecutorSkipsBestEffortStageWithNeutralOutputs(t *testing.T) {
	provider := &scriptedProvider{
		outputs: happyOutputs(),
		errs:    map[types.StageID]error{types.StageCitationAnalysis: errors.New("provider exploded")},
	}
	executor := NewExecutor(provider, NewGate(40, 40))

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))
	require.NoError(t, sctx.Set(types.StageContentAnalysis, KeyContentOverview, "an overview long enough to satisfy the gate rules"))

	result, err := executor.Execute(context.Background(), stageByID(t, types.StageCitationAnalysis), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageSkipped, result.Status)
	assert.NotEmpty(t, result.Violations)

	citations, getErr := sctx.Get(KeyCitations)
	require.NoError(t, getErr)
	assert.Empty(t, citations)

	total, getErr := sctx.Get(KeyTotalReferences)
	require.NoError(t, getErr)
	assert.Equal(t, 0, total)
}

func TestExecutorSkipsBestEffortStageOnValidationFailure(t *testing.T) {
	outputs := happyOutputs()
	outputs[types.StageSummaryGeneration] = map[string]any{
		KeySummary:   "too short",
		KeyKeyPoints: []string{"point"},
	}
	provider := &scriptedProvider{outputs: outputs}
	executor := NewExecutor(provider, NewGate(40, 40))

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageContentAnalysis, KeyContentOverview, "an overview long enough to satisfy the gate rules"))
	require.NoError(t, sctx.Set(types.StageClassification, KeyCategory, string(types.CategoryResearchPaper)))

	result, err := executor.Execute(context.Background(), stageByID(t, types.StageSummaryGeneration), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageSkipped, result.Status)

	summary, getErr := sctx.Get(KeySummary)
	require.NoError(t, getErr)
	assert.Equal(t, "", summary)
}

func TestExecutorRejectsRequiredStageOnValidationFailure(t *testing.T) {
	outputs := happyOutputs()
	outputs[types.StageClassification] = map[string]any{
		KeyCategory:        string(types.CategoryResearchPaper),
		KeyConfidenceScore: 1.5,
	}
	provider := &scriptedProvider{outputs: outputs}
	executor := NewExecutor(provider, NewGate(40, 40))

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageContentAnalysis, KeyContentOverview, "an overview long enough to satisfy the gate rules"))

	result, err := executor.Execute(context.Background(), stageByID(t, types.StageClassification), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, result.Status)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, KeyConfidenceScore, result.Violations[0].Field)
	assert.False(t, sctx.Has(KeyCategory))
	assert.False(t, sctx.Has(KeyConfidenceScore))
}

func TestExecutorTimeoutIsStageExecutionFailure(t *testing.T) {
	provider := &scriptedProvider{outputs: happyOutputs(), blockOn: types.StageContentAnalysis}
	executor := NewExecutor(provider, NewGate(40, 40))

	desc := stageByID(t, types.StageContentAnalysis)
	desc.Timeout = 10 * time.Millisecond

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))

	result, err := executor.Execute(context.Background(), desc, sctx)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, result.Status)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, types.ErrorTypeStageExecutionFailure, result.Violations[0].Rule)
}

func TestExecutorExpiredRunDeadlineIsStageExecutionFailure(t *testing.T) {
	provider := &scriptedProvider{outputs: happyOutputs(), blockOn: types.StageContentAnalysis}
	executor := NewExecutor(provider, NewGate(40, 40))

	// The run-wide deadline expires while the per-stage budget is still
	// generous; this is a timeout, not a cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))

	result, err := executor.Execute(ctx, stageByID(t, types.StageContentAnalysis), sctx)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, result.Status)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, types.ErrorTypeStageExecutionFailure, result.Violations[0].Rule)
}

func TestExecutorPropagatesExternalCancellation(t *testing.T) {
	provider := &scriptedProvider{outputs: happyOutputs(), blockOn: types.StageContentAnalysis}
	executor := NewExecutor(provider, NewGate(40, 40))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	sctx := NewContext()
	require.NoError(t, sctx.Set(types.StageIntake, KeySections, sampleSections()))

	_, err := executor.Execute(ctx, stageByID(t, types.StageContentAnalysis), sctx)
	assert.ErrorIs(t, err, types.ErrCancelled)
}
