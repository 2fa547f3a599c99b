package types

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures log records for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) last(t *testing.T) slog.Record {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.records)
	return h.records[len(h.records)-1]
}

func attrsOf(r slog.Record) map[string]any {
	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	return attrs
}

func newRecordedLogger(t *testing.T, component string) (*StandardLogger, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{}
	previous := slog.Default()
	slog.SetDefault(slog.New(handler))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return NewStandardLogger(component), handler
}

func TestStandardLoggerContextIsImmutable(t *testing.T) {
	base, handler := newRecordedLogger(t, "pipeline")

	derived := base.WithRunID("run-1").WithStage(StageClassification)
	derived.Info(context.Background(), "derived entry")

	attrs := attrsOf(handler.last(t))
	assert.Equal(t, "run-1", attrs["run_id"])
	assert.Equal(t, string(StageClassification), attrs["stage"])

	// The base logger carries none of the derived context.
	base.Info(context.Background(), "base entry")
	attrs = attrsOf(handler.last(t))
	assert.Equal(t, "pipeline", attrs["component"])
	assert.NotContains(t, attrs, "run_id")
	assert.NotContains(t, attrs, "stage")
}

func TestLogStageLifecycleFields(t *testing.T) {
	logger, handler := newRecordedLogger(t, "pipeline")

	logger.LogStageStart(context.Background(), "run-2", StageContentAnalysis)
	attrs := attrsOf(handler.last(t))
	assert.Equal(t, "stage_start", attrs["operation"])
	assert.Equal(t, "run-2", attrs["run_id"])
	assert.Equal(t, string(StageContentAnalysis), attrs["stage"])

	logger.LogStageComplete(context.Background(), "run-2", StageContentAnalysis, "committed", 125*time.Millisecond)
	record := handler.last(t)
	assert.Equal(t, slog.LevelInfo, record.Level)
	attrs = attrsOf(record)
	assert.Equal(t, "stage_complete", attrs["operation"])
	assert.Equal(t, "committed", attrs["status"])
	assert.Equal(t, 125*time.Millisecond, attrs["duration"])

	logger.LogStageError(context.Background(), "run-2", StageContentAnalysis, assert.AnError)
	record = handler.last(t)
	assert.Equal(t, slog.LevelError, record.Level)
	attrs = attrsOf(record)
	assert.Equal(t, "stage_error", attrs["operation"])
	assert.Equal(t, assert.AnError, attrs["error"])
}

func TestLogValidationErrorCarriesFieldAndValue(t *testing.T) {
	logger, handler := newRecordedLogger(t, "stage_executor")

	logger.LogValidationError(context.Background(), "confidence_score", 1.5, assert.AnError)

	record := handler.last(t)
	assert.Equal(t, slog.LevelError, record.Level)
	attrs := attrsOf(record)
	assert.Equal(t, "validation_error", attrs["operation"])
	assert.Equal(t, "confidence_score", attrs["field"])
	assert.Equal(t, 1.5, attrs["value"])
}

func TestLogSystemEventMergesDetails(t *testing.T) {
	logger, handler := newRecordedLogger(t, "main")

	logger.LogSystemEvent(context.Background(), "startup", map[string]any{"port": 8080})

	attrs := attrsOf(handler.last(t))
	assert.Equal(t, "system_event", attrs["operation"])
	assert.Equal(t, "startup", attrs["event"])
	assert.EqualValues(t, 8080, attrs["port"])
}

func TestLogConfigurationError(t *testing.T) {
	logger, handler := newRecordedLogger(t, "main")

	logger.LogConfigurationError(context.Background(), "config.yaml", assert.AnError)

	record := handler.last(t)
	assert.Equal(t, slog.LevelError, record.Level)
	attrs := attrsOf(record)
	assert.Equal(t, "configuration_error", attrs["operation"])
	assert.Equal(t, "config.yaml", attrs["configuration_component"])
}
