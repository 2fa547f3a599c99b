package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/types"
)

// Controller state names, reported through run events.
const (
	StateInit     = "INIT"
	StateStage    = "STAGE"
	StateAssemble = "ASSEMBLE"
	StatePersist  = "PERSIST"
	StateComplete = "COMPLETE"
	StateError    = "ERROR"
)

// Config tunes one controller instance. Zero values fall back to defaults.
type Config struct {
	// RunTimeout bounds the wall clock of an entire run.
	RunTimeout time.Duration
	// StageTimeout bounds each stage logic provider call.
	StageTimeout time.Duration
	// MinOverviewLength and MinSummaryLength are the validation gate's
	// minimum lengths for generated free text.
	MinOverviewLength int
	MinSummaryLength  int
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		RunTimeout:        5 * time.Minute,
		StageTimeout:      60 * time.Second,
		MinOverviewLength: 40,
		MinSummaryLength:  40,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = d.StageTimeout
	}
	if c.MinOverviewLength <= 0 {
		c.MinOverviewLength = d.MinOverviewLength
	}
	if c.MinSummaryLength <= 0 {
		c.MinSummaryLength = d.MinSummaryLength
	}
	return c
}

// Controller drives the ordered stage sequence for each run, applies the
// tier-based abort policy, and triggers final assembly and persistence.
//
// A controller is safe for concurrent runs: every run owns an independent
// shared context, and the stage configuration is immutable after startup.
type Controller struct {
	extractor interfaces.ContentExtractor
	store     interfaces.ResultStore
	executor  *Executor
	stages    []Descriptor
	cfg       Config
	observer  interfaces.RunObserver
	logger    *types.StandardLogger
}

// NewController wires the controller to its collaborators.
func NewController(
	extractor interfaces.ContentExtractor,
	provider interfaces.StageProvider,
	store interfaces.ResultStore,
	cfg Config,
) *Controller {
	cfg = cfg.withDefaults()
	gate := NewGate(cfg.MinOverviewLength, cfg.MinSummaryLength)
	return &Controller{
		extractor: extractor,
		store:     store,
		executor:  NewExecutor(provider, gate),
		stages:    DefaultStages(cfg.StageTimeout),
		cfg:       cfg,
		logger:    types.NewStandardLogger("pipeline"),
	}
}

// SetObserver registers a progress event receiver. Must be called before
// the first run.
func (c *Controller) SetObserver(observer interfaces.RunObserver) {
	c.observer = observer
}

// Stages returns the immutable stage descriptors in execution order.
func (c *Controller) Stages() []Descriptor {
	return c.stages
}

// Run executes one full pipeline run and always returns exactly one of the
// two envelope shapes: success with the persisted result id, or error with
// the taxonomy tag and failing stage. There is no resumption from a failed
// run; callers start over with fresh inputs.
func (c *Controller) Run(ctx context.Context, input types.RunInput) types.RunOutcome {
	runID := uuid.New().String()
	logger := c.logger.WithRunID(runID).WithContentReference(input.ContentReference)
	start := time.Now()

	c.emit(runID, StateInit, "", "", "")
	logger.WithOperation("run_start").Info(ctx, "pipeline run starting")

	if input.ContentReference == "" {
		return c.fail(ctx, logger, runID, types.ErrorTypeMissingUpstreamData,
			"content_reference is required", "")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	sections, err := c.extractor.FetchSections(runCtx, input.ContentReference)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() != nil {
			return c.fail(ctx, logger, runID, types.ErrorTypeCancelled, "run cancelled", "")
		}
		return c.fail(ctx, logger, runID, types.ErrorTypeMissingUpstreamData,
			"content reference did not resolve to parsed section data: "+err.Error(), "")
	}

	sctx := NewContext()
	if err := sctx.Set(types.StageIntake, KeySections, sections); err != nil {
		return c.fail(ctx, logger, runID, types.ErrorTypeStageExecutionFailure, err.Error(), "")
	}

	results := make([]StageResult, 0, len(c.stages))
	for _, desc := range c.stages {
		if ctx.Err() != nil {
			return c.fail(ctx, logger, runID, types.ErrorTypeCancelled, "run cancelled", desc.ID)
		}
		c.emit(runID, StateStage, desc.ID, "", "")
		c.logger.LogStageStart(ctx, runID, desc.ID)

		result, execErr := c.executor.Execute(runCtx, desc, sctx)
		if execErr != nil {
			return c.fail(ctx, logger, runID, types.ErrorTypeCancelled, "run cancelled", desc.ID)
		}
		results = append(results, result)

		c.logger.LogStageComplete(ctx, runID, desc.ID, string(result.Status), result.Duration)
		c.emit(runID, StateStage, desc.ID, string(result.Status), types.JoinViolations(result.Violations))

		if result.Status == StageRejected {
			c.logger.LogStageError(ctx, runID, desc.ID, errors.New(types.JoinViolations(result.Violations)))
			errType := rejectionType(result.Violations)
			return c.fail(ctx, logger, runID, errType, types.JoinViolations(result.Violations), desc.ID)
		}
	}

	c.emit(runID, StateAssemble, "", "", "")
	record, err := assembleRecord(input, sctx.Snapshot())
	if err != nil {
		return c.fail(ctx, logger, runID, types.ErrorTypeValidationFailure,
			"aggregate assembly failed: "+err.Error(), "")
	}

	if ctx.Err() != nil {
		return c.fail(ctx, logger, runID, types.ErrorTypeCancelled, "run cancelled", "")
	}

	c.emit(runID, StatePersist, "", "", "")
	resultID, err := c.store.Store(runCtx, record)
	if err != nil {
		if ctx.Err() != nil {
			return c.fail(ctx, logger, runID, types.ErrorTypeCancelled, "run cancelled", "")
		}
		// Terminal: the controller never retries persistence.
		return c.fail(ctx, logger, runID, types.ErrorTypePersistenceFailure, err.Error(), "")
	}

	c.emit(runID, StateComplete, "", "", "")
	logger.WithOperation("run_complete").
		WithDuration(time.Since(start)).
		WithMetadata("analysis_result_id", resultID).
		WithMetadata("stages", len(results)).
		Info(ctx, "pipeline run complete")
	return types.SuccessOutcome(resultID)
}

// fail emits the terminal error event and builds the error envelope.
func (c *Controller) fail(ctx context.Context, logger *types.StandardLogger, runID, errType, message string, stage types.StageID) types.RunOutcome {
	logger.WithOperation("run_failed").
		WithStage(stage).
		WithMetadata("error_type", errType).
		Error(ctx, "pipeline run failed", errors.New(message))
	c.emit(runID, StateError, stage, errType, message)
	return types.ErrorOutcome(errType, message, stage)
}

func (c *Controller) emit(runID, state string, stage types.StageID, status, detail string) {
	if c.observer == nil {
		return
	}
	c.observer(interfaces.RunEvent{
		RunID:     runID,
		State:     state,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// rejectionType maps a rejected stage's violations to the taxonomy tag:
// missing upstream data and execution failures are reported as such, any
// other rule failure is a validation failure.
func rejectionType(violations []types.Violation) string {
	for _, v := range violations {
		if v.Rule == types.ErrorTypeMissingUpstreamData {
			return types.ErrorTypeMissingUpstreamData
		}
	}
	for _, v := range violations {
		if v.Rule == types.ErrorTypeStageExecutionFailure {
			return types.ErrorTypeStageExecutionFailure
		}
	}
	return types.ErrorTypeValidationFailure
}
