package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/maps/internal/config"
	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/subsystems"
	"github.com/example/maps/internal/types"
)

type stubRunService struct {
	outcome   types.RunOutcome
	err       error
	input     types.RunInput
	health    *subsystems.HealthStatus
	callbacks map[string]subsystems.EventCallback
}

func newStubRunService() *stubRunService {
	return &stubRunService{
		outcome: types.SuccessOutcome("result-1"),
		health: &subsystems.HealthStatus{
			Status:          "healthy",
			Timestamp:       time.Now(),
			ComponentHealth: map[string]string{"extraction": "healthy"},
		},
		callbacks: make(map[string]subsystems.EventCallback),
	}
}

func (s *stubRunService) SubmitAndWait(ctx context.Context, input types.RunInput) (types.RunOutcome, error) {
	s.input = input
	return s.outcome, s.err
}

func (s *stubRunService) GetHealth() *subsystems.HealthStatus { return s.health }

func (s *stubRunService) SubscribeEvents(id string, cb subsystems.EventCallback) {
	s.callbacks[id] = cb
}

func (s *stubRunService) UnsubscribeEvents(id string) { delete(s.callbacks, id) }

func newTestServer(t *testing.T, svc RunService) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.DefaultConfig()
	srv := NewServer(ctx, &cfg.Server, svc)
	t.Cleanup(func() { srv.connectionManager.Stop() })
	return srv
}

func postAnalyze(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeSuccessReturnsOutcomeEnvelope(t *testing.T) {
	svc := newStubRunService()
	srv := newTestServer(t, svc)

	rec := postAnalyze(t, srv, `{"content_reference":"doc-123","document_reference":"man-7"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc-123", svc.input.ContentReference)
	assert.Equal(t, "man-7", svc.input.DocumentReference)

	var outcome types.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, types.RunStatusSuccess, outcome.Status)
	assert.Equal(t, "result-1", outcome.Result.AnalysisResultID)
}

func TestAnalyzeStatusCodeByErrorType(t *testing.T) {
	tests := []struct {
		name     string
		outcome  types.RunOutcome
		wantCode int
	}{
		{
			name:     "missing upstream data",
			outcome:  types.ErrorOutcome(types.ErrorTypeMissingUpstreamData, "no sections", types.StageIntake),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "validation failure",
			outcome:  types.ErrorOutcome(types.ErrorTypeValidationFailure, "bad category", types.StageClassification),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "stage execution failure",
			outcome:  types.ErrorOutcome(types.ErrorTypeStageExecutionFailure, "llm down", types.StageContentAnalysis),
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "persistence failure",
			outcome:  types.ErrorOutcome(types.ErrorTypePersistenceFailure, "store down", ""),
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "cancelled",
			outcome:  types.ErrorOutcome(types.ErrorTypeCancelled, "run cancelled", ""),
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubRunService()
			svc.outcome = tt.outcome
			srv := newTestServer(t, svc)

			rec := postAnalyze(t, srv, `{"content_reference":"doc-123"}`)

			assert.Equal(t, tt.wantCode, rec.Code)

			var outcome types.RunOutcome
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
			assert.Equal(t, types.RunStatusError, outcome.Status)
			assert.Equal(t, tt.outcome.Result.ErrorType, outcome.Result.ErrorType)
		})
	}
}

func TestAnalyzeRejectsWrongMethod(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyze", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyzeRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	rec := postAnalyze(t, srv, `{"content_reference":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid request body")
}

func TestAnalyzeSubmissionErrorReturnsServiceUnavailable(t *testing.T) {
	svc := newStubRunService()
	svc.err = assert.AnError
	srv := newTestServer(t, svc)

	rec := postAnalyze(t, srv, `{"content_reference":"doc-123"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSystemStatusReportsHealthAndConnections(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "health")
	assert.Equal(t, float64(0), data["websocket_connections"])
}

func TestHealthCheckDegradedReturnsServiceUnavailable(t *testing.T) {
	svc := newStubRunService()
	svc.health.Status = "degraded"
	srv := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddlewareCatchesPanics(t *testing.T) {
	srv := newTestServer(t, newStubRunService())
	srv.mux.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpointServesExpvar(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cmdline")
}

func TestWebSocketRunsStreamsEvents(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration travels through the manager goroutine.
	require.Eventually(t, func() bool {
		return srv.connectionManager.GetConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	event := interfaces.RunEvent{
		RunID:     "run-1",
		State:     "STAGE",
		Stage:     types.StageContentAnalysis,
		Status:    "started",
		Timestamp: time.Now(),
	}
	srv.connectionManager.Broadcast(event)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received interfaces.RunEvent
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "run-1", received.RunID)
	assert.Equal(t, "STAGE", received.State)
	assert.Equal(t, types.StageContentAnalysis, received.Stage)
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	srv := newTestServer(t, newStubRunService())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return srv.connectionManager.GetConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return srv.connectionManager.GetConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}
