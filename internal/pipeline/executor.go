package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/types"
)

// Executor wraps one analysis stage: it resolves required inputs from the
// shared context, invokes the stage logic provider under the stage's time
// budget, runs the validation gate, and commits or rejects the result.
type Executor struct {
	provider interfaces.StageProvider
	gate     *Gate
	logger   *types.StandardLogger
}

// NewExecutor creates a stage executor around a provider and gate.
func NewExecutor(provider interfaces.StageProvider, gate *Gate) *Executor {
	return &Executor{
		provider: provider,
		gate:     gate,
		logger:   types.NewStandardLogger("stage_executor"),
	}
}

// Execute runs one stage against the shared context.
//
// The returned error is non-nil only when the run was cancelled externally;
// every other failure is expressed through the StageResult status and
// violation list so the controller can apply the tier policy.
func (e *Executor) Execute(ctx context.Context, desc Descriptor, sctx *Context) (StageResult, error) {
	start := time.Now()
	result := StageResult{Stage: desc.ID, Status: StageRejected}

	// Missing upstream data is a hard failure regardless of tier: a stage
	// can never meaningfully run without its declared inputs.
	inputs := make(map[string]any, len(desc.Inputs))
	for _, key := range desc.Inputs {
		value, err := sctx.Get(key)
		if err != nil {
			result.Violations = append(result.Violations, types.Violation{
				Field:   key,
				Rule:    types.ErrorTypeMissingUpstreamData,
				Message: fmt.Sprintf("required input key %q was never produced", key),
			})
		} else {
			inputs[key] = value
		}
	}
	if len(result.Violations) > 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	stageCtx := ctx
	var cancel context.CancelFunc
	if desc.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}

	output, err := e.provider.Execute(stageCtx, desc.ID, inputs)
	if err != nil {
		// External cancellation takes precedence over the tier policy. An
		// expired run budget is a timeout, not a cancellation, and falls
		// through to the execution-failure path below.
		if errors.Is(ctx.Err(), context.Canceled) {
			result.Duration = time.Since(start)
			return result, types.ErrCancelled
		}
		result.Violations = append(result.Violations, types.Violation{
			Field:   string(desc.ID),
			Rule:    types.ErrorTypeStageExecutionFailure,
			Message: err.Error(),
		})
		result.Duration = time.Since(start)
		return e.applyTier(ctx, desc, sctx, result), nil
	}

	if violations := e.gate.Validate(desc.ID, output); len(violations) > 0 {
		for _, v := range violations {
			e.logger.WithStage(desc.ID).LogValidationError(ctx, v.Field, output[v.Field], errors.New(v.String()))
		}
		result.Violations = violations
		result.Duration = time.Since(start)
		return e.applyTier(ctx, desc, sctx, result), nil
	}

	// Valid output: commit every produced key.
	for _, key := range desc.Outputs {
		if err := sctx.Set(desc.ID, key, output[key]); err != nil {
			result.Violations = append(result.Violations, types.Violation{
				Field:   key,
				Rule:    types.ErrorTypeValidationFailure,
				Message: err.Error(),
			})
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	result.Status = StageCommitted
	result.Output = output
	result.Duration = time.Since(start)
	return result, nil
}

// applyTier downgrades a failed best-effort stage to skipped, committing the
// declared neutral value for each output key. Required-tier failures stay
// rejected with no partial writes.
func (e *Executor) applyTier(ctx context.Context, desc Descriptor, sctx *Context, result StageResult) StageResult {
	if desc.Tier != types.TierBestEffort {
		return result
	}

	e.logger.WithStage(desc.ID).
		WithMetadata("violations", types.JoinViolations(result.Violations)).
		Warn(ctx, "best-effort stage failed, committing neutral outputs")

	for _, key := range desc.Outputs {
		if err := sctx.Set(desc.ID, key, desc.Neutral[key]); err != nil {
			// Neutral writes hit the same ownership rules as real ones.
			result.Violations = append(result.Violations, types.Violation{
				Field:   key,
				Rule:    types.ErrorTypeValidationFailure,
				Message: err.Error(),
			})
			return result
		}
	}
	result.Status = StageSkipped
	return result
}
