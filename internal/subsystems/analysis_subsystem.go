// Package subsystems hosts the long-running analysis engine: a channel-fed
// worker pool around the pipeline controller, with response fan-out and a
// health reporting loop.
package subsystems

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/pipeline"
	"github.com/example/maps/internal/types"
)

// RunRequest represents a queued analysis run
type RunRequest struct {
	RequestID string           `json:"request_id"`
	Input     types.RunInput   `json:"input"`
	Callback  ResponseCallback `json:"-"` // Not serialized - for internal use
}

// RunResponse represents the result of one analysis run
type RunResponse struct {
	RequestID      string           `json:"request_id"`
	Outcome        types.RunOutcome `json:"outcome"`
	ProcessingTime time.Duration    `json:"processing_time"`
}

// ResponseCallback is a function type for handling run responses
type ResponseCallback func(response *RunResponse)

// EventCallback is a function type for handling run progress events
type EventCallback func(event interfaces.RunEvent)

// HealthStatus represents the health status of the analysis subsystem
type HealthStatus struct {
	Status                string            `json:"status"`
	Timestamp             time.Time         `json:"timestamp"`
	RunsProcessed         int64             `json:"runs_processed"`
	RunsFailed            int64             `json:"runs_failed"`
	RunsInProgress        int               `json:"runs_in_progress"`
	QueueDepth            int               `json:"queue_depth"`
	AverageProcessingTime time.Duration     `json:"average_processing_time"`
	LastError             string            `json:"last_error,omitempty"`
	ComponentHealth       map[string]string `json:"component_health"`
}

// Config contains configuration for the analysis subsystem
type Config struct {
	WorkerCount    int `json:"worker_count"`
	RequestBuffer  int `json:"request_buffer"`
	ResponseBuffer int `json:"response_buffer"`
}

// DefaultConfig returns subsystem defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		RequestBuffer:  64,
		ResponseBuffer: 64,
	}
}

// AnalysisSubsystem runs the pipeline controller behind a bounded queue.
// Each worker executes at most one run at a time; run isolation comes from
// the controller, which builds a fresh shared context per run.
type AnalysisSubsystem struct {
	requestChan  chan *RunRequest
	responseChan chan *RunResponse
	healthChan   chan chan *HealthStatus

	controller *pipeline.Controller
	extractor  interfaces.ContentExtractor
	store      interfaces.ResultStore
	cfg        Config

	subscribers      map[string]ResponseCallback
	eventSubscribers map[string]EventCallback
	subscribersMu    sync.RWMutex

	runsProcessed   int64
	runsFailed      int64
	runsInProgress  int
	processingTimes []time.Duration
	lastError       string
	stateMu         sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewAnalysisSubsystem creates the subsystem around an already wired
// controller. extractor and store are only used for component health checks.
func NewAnalysisSubsystem(
	ctx context.Context,
	controller *pipeline.Controller,
	extractor interfaces.ContentExtractor,
	store interfaces.ResultStore,
	cfg Config,
) *AnalysisSubsystem {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.RequestBuffer <= 0 {
		cfg.RequestBuffer = DefaultConfig().RequestBuffer
	}
	if cfg.ResponseBuffer <= 0 {
		cfg.ResponseBuffer = DefaultConfig().ResponseBuffer
	}

	subsystemCtx, cancel := context.WithCancel(ctx)
	s := &AnalysisSubsystem{
		requestChan:      make(chan *RunRequest, cfg.RequestBuffer),
		responseChan:     make(chan *RunResponse, cfg.ResponseBuffer),
		healthChan:       make(chan chan *HealthStatus),
		controller:       controller,
		extractor:        extractor,
		store:            store,
		cfg:              cfg,
		subscribers:      make(map[string]ResponseCallback),
		eventSubscribers: make(map[string]EventCallback),
		processingTimes:  make([]time.Duration, 0, processingTimeWindow),
		ctx:              subsystemCtx,
		cancel:           cancel,
	}

	// Progress events from every run fan out to all event subscribers.
	controller.SetObserver(s.broadcastEvent)
	return s
}

// Start begins request processing.
func (s *AnalysisSubsystem) Start() error {
	slog.InfoContext(s.ctx, "starting analysis subsystem",
		"workers", s.cfg.WorkerCount,
		"queue", s.cfg.RequestBuffer)

	group, groupCtx := errgroup.WithContext(s.ctx)
	s.group = group

	for w := 0; w < s.cfg.WorkerCount; w++ {
		group.Go(func() error {
			s.worker(groupCtx)
			return nil
		})
	}
	group.Go(func() error {
		s.responseBroadcaster(groupCtx)
		return nil
	})
	group.Go(func() error {
		s.healthMonitor(groupCtx)
		return nil
	})

	slog.InfoContext(s.ctx, "analysis subsystem started")
	return nil
}

// Stop gracefully shuts down the subsystem.
func (s *AnalysisSubsystem) Stop() error {
	slog.InfoContext(s.ctx, "stopping analysis subsystem")
	s.cancel()
	if s.group != nil {
		if err := s.group.Wait(); err != nil {
			return err
		}
	}
	slog.Info("analysis subsystem stopped")
	return nil
}

// Submit queues an analysis run. It never blocks: a full queue is an error
// the caller must surface.
func (s *AnalysisSubsystem) Submit(request *RunRequest) error {
	if request.RequestID == "" {
		request.RequestID = uuid.New().String()
	}
	select {
	case s.requestChan <- request:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("subsystem is shutting down")
	default:
		return fmt.Errorf("request queue full")
	}
}

// SubmitAndWait queues a run and blocks until its outcome is available or
// ctx is done.
func (s *AnalysisSubsystem) SubmitAndWait(ctx context.Context, input types.RunInput) (types.RunOutcome, error) {
	done := make(chan *RunResponse, 1)
	request := &RunRequest{
		RequestID: uuid.New().String(),
		Input:     input,
		Callback: func(response *RunResponse) {
			done <- response
		},
	}

	if err := s.Submit(request); err != nil {
		return types.RunOutcome{}, err
	}

	select {
	case response := <-done:
		return response.Outcome, nil
	case <-ctx.Done():
		return types.RunOutcome{}, ctx.Err()
	case <-s.ctx.Done():
		return types.RunOutcome{}, fmt.Errorf("subsystem is shutting down")
	}
}

// Subscribe registers a callback to receive every run response.
func (s *AnalysisSubsystem) Subscribe(subscriberID string, callback ResponseCallback) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	s.subscribers[subscriberID] = callback
}

// Unsubscribe removes a response subscriber.
func (s *AnalysisSubsystem) Unsubscribe(subscriberID string) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	delete(s.subscribers, subscriberID)
}

// SubscribeEvents registers a callback to receive run progress events.
func (s *AnalysisSubsystem) SubscribeEvents(subscriberID string, callback EventCallback) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	s.eventSubscribers[subscriberID] = callback
}

// UnsubscribeEvents removes an event subscriber.
func (s *AnalysisSubsystem) UnsubscribeEvents(subscriberID string) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	delete(s.eventSubscribers, subscriberID)
}

// GetHealth returns the current health status of the subsystem.
func (s *AnalysisSubsystem) GetHealth() *HealthStatus {
	healthResponseChan := make(chan *HealthStatus, 1)

	select {
	case s.healthChan <- healthResponseChan:
		return <-healthResponseChan
	case <-s.ctx.Done():
		return &HealthStatus{Status: "shutting_down", Timestamp: time.Now().UTC()}
	case <-time.After(time.Second):
		return &HealthStatus{Status: "timeout", Timestamp: time.Now().UTC()}
	}
}

// worker consumes queued requests until shutdown.
func (s *AnalysisSubsystem) worker(ctx context.Context) {
	for {
		select {
		case request := <-s.requestChan:
			s.processRequest(ctx, request)
		case <-ctx.Done():
			return
		}
	}
}

// processRequest executes one run and publishes its response.
func (s *AnalysisSubsystem) processRequest(ctx context.Context, request *RunRequest) {
	start := time.Now()

	s.stateMu.Lock()
	s.runsInProgress++
	s.stateMu.Unlock()

	outcome := s.controller.Run(ctx, request.Input)
	elapsed := time.Since(start)

	s.stateMu.Lock()
	s.runsInProgress--
	s.runsProcessed++
	if outcome.Status == types.RunStatusError {
		s.runsFailed++
		s.lastError = outcome.Result.Error
	}
	s.appendProcessingTime(elapsed)
	s.stateMu.Unlock()

	response := &RunResponse{
		RequestID:      request.RequestID,
		Outcome:        outcome,
		ProcessingTime: elapsed,
	}

	if request.Callback != nil {
		request.Callback(response)
	}

	select {
	case s.responseChan <- response:
	case <-ctx.Done():
	default:
		slog.WarnContext(ctx, "response buffer full, dropping broadcast",
			"request_id", request.RequestID)
	}
}

// responseBroadcaster fans responses out to subscribers.
func (s *AnalysisSubsystem) responseBroadcaster(ctx context.Context) {
	for {
		select {
		case response := <-s.responseChan:
			s.subscribersMu.RLock()
			for _, callback := range s.subscribers {
				callback(response)
			}
			s.subscribersMu.RUnlock()
		case <-ctx.Done():
			return
		}
	}
}

// broadcastEvent fans one controller progress event out to subscribers.
func (s *AnalysisSubsystem) broadcastEvent(event interfaces.RunEvent) {
	s.subscribersMu.RLock()
	defer s.subscribersMu.RUnlock()
	for _, callback := range s.eventSubscribers {
		callback(event)
	}
}

// healthMonitor answers health queries over the health channel.
func (s *AnalysisSubsystem) healthMonitor(ctx context.Context) {
	for {
		select {
		case responseChan := <-s.healthChan:
			responseChan <- s.buildHealthStatus(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processingTimeWindow is the number of recent run durations kept for the
// average in the health snapshot.
const processingTimeWindow = 100

// appendProcessingTime records one run duration, keeping only the most
// recent processingTimeWindow samples in place. Callers must hold stateMu.
func (s *AnalysisSubsystem) appendProcessingTime(elapsed time.Duration) {
	if n := len(s.processingTimes); n >= processingTimeWindow {
		copy(s.processingTimes, s.processingTimes[n-processingTimeWindow+1:])
		s.processingTimes = s.processingTimes[:processingTimeWindow-1]
	}
	s.processingTimes = append(s.processingTimes, elapsed)
}

func (s *AnalysisSubsystem) buildHealthStatus(ctx context.Context) *HealthStatus {
	s.stateMu.RLock()
	status := &HealthStatus{
		Status:          "healthy",
		Timestamp:       time.Now().UTC(),
		RunsProcessed:   s.runsProcessed,
		RunsFailed:      s.runsFailed,
		RunsInProgress:  s.runsInProgress,
		QueueDepth:      len(s.requestChan),
		LastError:       s.lastError,
		ComponentHealth: make(map[string]string),
	}
	if len(s.processingTimes) > 0 {
		var total time.Duration
		for _, t := range s.processingTimes {
			total += t
		}
		status.AverageProcessingTime = total / time.Duration(len(s.processingTimes))
	}
	s.stateMu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if s.extractor != nil {
		if err := s.extractor.Health(checkCtx); err != nil {
			status.ComponentHealth["extraction"] = err.Error()
			status.Status = "degraded"
		} else {
			status.ComponentHealth["extraction"] = "healthy"
		}
	}
	if s.store != nil {
		if err := s.store.Health(checkCtx); err != nil {
			status.ComponentHealth["storage"] = err.Error()
			status.Status = "degraded"
		} else {
			status.ComponentHealth["storage"] = "healthy"
		}
	}

	return status
}
