package types

import (
	"context"
	"log/slog"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogContext represents common context for all log entries
type LogContext struct {
	Component        string         `json:"component"`
	Operation        string         `json:"operation"`
	RunID            string         `json:"run_id,omitempty"`
	Stage            StageID        `json:"stage,omitempty"`
	ContentReference string         `json:"content_reference,omitempty"`
	Duration         time.Duration  `json:"duration,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// StandardLogger provides consistent logging methods across the application
type StandardLogger struct {
	logger *slog.Logger
	ctx    LogContext
}

// NewStandardLogger creates a new StandardLogger with base context
func NewStandardLogger(component string) *StandardLogger {
	return &StandardLogger{
		logger: slog.Default(),
		ctx: LogContext{
			Component: component,
			Metadata:  make(map[string]any),
		},
	}
}

// WithOperation returns a new logger with operation context
func (l *StandardLogger) WithOperation(operation string) *StandardLogger {
	newCtx := l.ctx
	newCtx.Operation = operation
	return &StandardLogger{
		logger: l.logger,
		ctx:    newCtx,
	}
}

// WithRunID returns a new logger with run ID context
func (l *StandardLogger) WithRunID(runID string) *StandardLogger {
	newCtx := l.ctx
	newCtx.RunID = runID
	return &StandardLogger{
		logger: l.logger,
		ctx:    newCtx,
	}
}

// WithStage returns a new logger with stage context
func (l *StandardLogger) WithStage(stage StageID) *StandardLogger {
	newCtx := l.ctx
	newCtx.Stage = stage
	return &StandardLogger{
		logger: l.logger,
		ctx:    newCtx,
	}
}

// WithContentReference returns a new logger with content reference context
func (l *StandardLogger) WithContentReference(contentReference string) *StandardLogger {
	newCtx := l.ctx
	newCtx.ContentReference = contentReference
	return &StandardLogger{
		logger: l.logger,
		ctx:    newCtx,
	}
}

// WithDuration returns a new logger with duration context
func (l *StandardLogger) WithDuration(duration time.Duration) *StandardLogger {
	newCtx := l.ctx
	newCtx.Duration = duration
	return &StandardLogger{
		logger: l.logger,
		ctx:    newCtx,
	}
}

// WithMetadata returns a new logger with additional metadata
func (l *StandardLogger) WithMetadata(key string, value any) *StandardLogger {
	newCtx := l.ctx
	newMetadata := make(map[string]any)
	for k, v := range l.ctx.Metadata {
		newMetadata[k] = v
	}
	newMetadata[key] = value
	newCtx.Metadata = newMetadata
	return &StandardLogger{
		logger: l.logger,
		ctx:    newCtx,
	}
}

// buildLogArgs creates slog attributes from context
func (l *StandardLogger) buildLogArgs() []slog.Attr {
	var attrs []slog.Attr

	attrs = append(attrs, slog.String("component", l.ctx.Component))

	if l.ctx.Operation != "" {
		attrs = append(attrs, slog.String("operation", l.ctx.Operation))
	}
	if l.ctx.RunID != "" {
		attrs = append(attrs, slog.String("run_id", l.ctx.RunID))
	}
	if l.ctx.Stage != "" {
		attrs = append(attrs, slog.String("stage", string(l.ctx.Stage)))
	}
	if l.ctx.ContentReference != "" {
		attrs = append(attrs, slog.String("content_reference", l.ctx.ContentReference))
	}
	if l.ctx.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", l.ctx.Duration))
	}

	// Add metadata
	for k, v := range l.ctx.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}

	return attrs
}

// Debug logs a debug message with standard context
func (l *StandardLogger) Debug(ctx context.Context, msg string, args ...slog.Attr) {
	allArgs := append(l.buildLogArgs(), args...)
	l.logger.LogAttrs(ctx, slog.LevelDebug, msg, allArgs...)
}

// Info logs an info message with standard context
func (l *StandardLogger) Info(ctx context.Context, msg string, args ...slog.Attr) {
	allArgs := append(l.buildLogArgs(), args...)
	l.logger.LogAttrs(ctx, slog.LevelInfo, msg, allArgs...)
}

// Warn logs a warning message with standard context
func (l *StandardLogger) Warn(ctx context.Context, msg string, args ...slog.Attr) {
	allArgs := append(l.buildLogArgs(), args...)
	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, allArgs...)
}

// Error logs an error message with standard context
func (l *StandardLogger) Error(ctx context.Context, msg string, err error, args ...slog.Attr) {
	allArgs := append(l.buildLogArgs(), args...)
	allArgs = append(allArgs, slog.Any("error", err))
	l.logger.LogAttrs(ctx, slog.LevelError, msg, allArgs...)
}

// LogStageStart logs the start of a pipeline stage with standard fields
func (l *StandardLogger) LogStageStart(ctx context.Context, runID string, stage StageID) {
	l.WithOperation("stage_start").
		WithRunID(runID).
		WithStage(stage).
		Info(ctx, "Starting pipeline stage")
}

// LogStageComplete logs the completion of a pipeline stage with metrics
func (l *StandardLogger) LogStageComplete(ctx context.Context, runID string, stage StageID, status string, duration time.Duration) {
	l.WithOperation("stage_complete").
		WithRunID(runID).
		WithStage(stage).
		WithDuration(duration).
		WithMetadata("status", status).
		Info(ctx, "Pipeline stage completed")
}

// LogStageError logs a stage failure with context
func (l *StandardLogger) LogStageError(ctx context.Context, runID string, stage StageID, err error) {
	l.WithOperation("stage_error").
		WithRunID(runID).
		WithStage(stage).
		Error(ctx, "Pipeline stage failed", err)
}

// LogValidationError logs a validation gate rejection with field context
func (l *StandardLogger) LogValidationError(ctx context.Context, field string, value any, err error) {
	l.WithOperation("validation_error").
		WithMetadata("field", field).
		WithMetadata("value", value).
		Error(ctx, "Validation failed", err)
}

// LogConfigurationError logs a configuration error
func (l *StandardLogger) LogConfigurationError(ctx context.Context, component string, err error) {
	l.WithOperation("configuration_error").
		WithMetadata("configuration_component", component).
		Error(ctx, "Configuration error", err)
}

// LogSystemEvent logs system-level events (startup, shutdown, etc.)
func (l *StandardLogger) LogSystemEvent(ctx context.Context, event string, details map[string]any) {
	logger := l.WithOperation("system_event").WithMetadata("event", event)
	for k, v := range details {
		logger = logger.WithMetadata(k, v)
	}
	logger.Info(ctx, "System event occurred")
}
