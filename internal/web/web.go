// Package web exposes the analysis pipeline over HTTP: a synchronous run
// endpoint, health and status reporting, and a websocket feed of run
// progress events.
package web

import (
	"bufio"
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/maps/internal/config"
	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/subsystems"
	"github.com/example/maps/internal/types"
)

// RunService is the seam between the web server and the analysis subsystem.
type RunService interface {
	// SubmitAndWait queues a run and blocks until its outcome is available.
	SubmitAndWait(ctx context.Context, input types.RunInput) (types.RunOutcome, error)

	// GetHealth returns the subsystem health snapshot.
	GetHealth() *subsystems.HealthStatus

	// SubscribeEvents registers a run progress event receiver.
	SubscribeEvents(subscriberID string, callback subsystems.EventCallback)

	// UnsubscribeEvents removes an event receiver.
	UnsubscribeEvents(subscriberID string)
}

// Server serves the MAPS HTTP API.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	runService RunService
	config     *config.ServerConfig

	upgrader          websocket.Upgrader
	connectionManager *WebSocketConnectionManager
}

// NewServer creates the web server around a run service.
func NewServer(ctx context.Context, cfg *config.ServerConfig, runService RunService) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		runService: runService,
		config:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connectionManager: NewWebSocketConnectionManager(ctx),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.middlewareChain(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.middlewareChain(s.mux)
}

// Start begins serving. It blocks until the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	// Feed every run progress event to connected websocket clients.
	subscriberID := "web-" + uuid.New().String()
	s.runService.SubscribeEvents(subscriberID, func(event interfaces.RunEvent) {
		s.connectionManager.Broadcast(event)
	})
	defer s.runService.UnsubscribeEvents(subscriberID)

	slog.InfoContext(ctx, "web server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	slog.InfoContext(ctx, "web server stopping")
	s.connectionManager.Stop()
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/v1/status", s.handleSystemStatus)
	s.mux.HandleFunc("/api/v1/health", s.handleHealthCheck)
	s.mux.HandleFunc("/health", s.handleHealthCheck)
	s.mux.Handle("/api/v1/metrics", expvar.Handler())

	// WebSocket endpoint for real-time run progress
	s.mux.HandleFunc("/ws/runs", s.handleWebSocketRuns)
}

func (s *Server) middlewareChain(next http.Handler) http.Handler {
	return s.loggingMiddleware(s.corsMiddleware(s.recoveryMiddleware(next)))
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)
		slog.InfoContext(r.Context(), "HTTP request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", time.Since(start))
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware handles panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(r.Context(), "Panic recovered", "panic", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so websocket upgrades
// work behind the middleware chain.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// API Response helpers
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: statusCode < 400,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode error response", "error", err)
	}
}

// handleAnalyze runs one analysis synchronously. The response body is always
// the run outcome envelope, success or error; the HTTP status reflects the
// failure taxonomy.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var input types.RunInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	outcome, err := s.runService.SubmitAndWait(r.Context(), input)
	if err != nil {
		s.sendError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(outcomeStatusCode(outcome))
	if err := json.NewEncoder(w).Encode(outcome); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode outcome", "error", err)
	}
}

// outcomeStatusCode maps the failure taxonomy to HTTP status codes.
func outcomeStatusCode(outcome types.RunOutcome) int {
	if outcome.Status == types.RunStatusSuccess {
		return http.StatusOK
	}
	switch outcome.Result.ErrorType {
	case types.ErrorTypeMissingUpstreamData, types.ErrorTypeValidationFailure:
		return http.StatusUnprocessableEntity
	case types.ErrorTypeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// handleSystemStatus returns the subsystem health snapshot.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := s.runService.GetHealth()
	s.sendJSON(w, r, http.StatusOK, map[string]any{
		"health":                health,
		"websocket_connections": s.connectionManager.GetConnectionCount(),
	})
}

// handleHealthCheck is the liveness endpoint.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := s.runService.GetHealth()
	statusCode := http.StatusOK
	if health.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	s.sendJSON(w, r, statusCode, map[string]any{
		"status":     health.Status,
		"timestamp":  health.Timestamp,
		"components": health.ComponentHealth,
	})
}

// handleWebSocketRuns upgrades the connection and streams run events.
func (s *Server) handleWebSocketRuns(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	s.connectionManager.RegisterConnection(conn)

	// Reader loop: we never expect client messages, but reading is how the
	// close handshake and connection drops are detected.
	go func() {
		defer s.connectionManager.UnregisterConnection(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
