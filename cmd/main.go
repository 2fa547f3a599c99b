package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/maps/internal/clients"
	"github.com/example/maps/internal/config"
	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/pipeline"
	"github.com/example/maps/internal/provider"
	"github.com/example/maps/internal/storage"
	"github.com/example/maps/internal/subsystems"
	"github.com/example/maps/internal/types"
	"github.com/example/maps/internal/web"
)

// Command line flags for the MAPS service
var (
	configPath = flag.String("config", "", "Path to a YAML configuration file (defaults apply when empty)")

	// Web server flags (override the config file when set)
	host    = flag.String("host", "", "The host to which to bind the web server")
	webPort = flag.Int("port", 0, "The port on which to run the web server")

	// External service URLs
	extractionURL = flag.String("extraction-url", "", "URL for the content extraction service")
	ollamaURL     = flag.String("ollama-url", "", "URL for the Ollama service")
	chromaURL     = flag.String("chroma-url", "", "URL for the ChromaDB service")

	// System flags
	shutdownTimeout = flag.Duration("shutdown_timeout", time.Second*30, "Graceful shutdown timeout")
	debugLogging    = flag.Bool("debug", false, "Enable debug logging")
)

// Application metrics
var (
	appMetrics = struct {
		startTime        *expvar.Int
		runsTotal        *expvar.Int
		runsFailed       *expvar.Int
		activeGoroutines *expvar.Int
		heapSize         *expvar.Int
		systemUptime     *expvar.Int
	}{
		startTime:        expvar.NewInt("app.start_time"),
		runsTotal:        expvar.NewInt("app.runs_total"),
		runsFailed:       expvar.NewInt("app.runs_failed"),
		activeGoroutines: expvar.NewInt("runtime.goroutines"),
		heapSize:         expvar.NewInt("runtime.heap_bytes"),
		systemUptime:     expvar.NewInt("app.uptime_seconds"),
	}
)

func updateRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	appMetrics.activeGoroutines.Set(int64(runtime.NumGoroutine()))
	appMetrics.heapSize.Set(int64(m.HeapAlloc))
	appMetrics.systemUptime.Set(int64(time.Since(time.Unix(appMetrics.startTime.Value(), 0)).Seconds()))
}

func setupLogging(cfg config.LoggingConfig, debug bool) {
	level := slog.LevelInfo
	switch types.LogLevel(cfg.Level) {
	case types.LogLevelDebug:
		level = slog.LevelDebug
	case types.LogLevelWarn:
		level = slog.LevelWarn
	case types.LogLevelError:
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	flag.Parse()
	ctx := context.Background()

	appMetrics.startTime.Set(time.Now().Unix())

	appLogger := types.NewStandardLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.LogConfigurationError(ctx, *configPath, err)
		os.Exit(1)
	}

	// Flags override the config file
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *webPort != 0 {
		cfg.Server.Port = *webPort
	}
	if *extractionURL != "" {
		cfg.Extraction.BaseURL = *extractionURL
	}
	if *ollamaURL != "" {
		cfg.LLM.BaseURL = *ollamaURL
	}
	chromaBaseURL := fmt.Sprintf("http://%s:%d", cfg.Storage.Host, cfg.Storage.Port)
	if *chromaURL != "" {
		chromaBaseURL = *chromaURL
	}

	setupLogging(cfg.Logging, *debugLogging)
	// Rebuild against the configured handler.
	appLogger = types.NewStandardLogger("main")

	slog.InfoContext(ctx, "Configuration",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"extraction_url", cfg.Extraction.BaseURL,
		"ollama_url", cfg.LLM.BaseURL,
		"chat_model", cfg.LLM.ChatModel,
		"embedding_model", cfg.LLM.EmbeddingModel,
		"chroma_url", chromaBaseURL,
		"collection", cfg.Storage.Collection,
		"workers", cfg.Performance.MaxConcurrentRuns,
		"doi_enrichment", cfg.Pipeline.DOI.Enabled)

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	// Start pprof and runtime metrics server if enabled
	if cfg.Performance.EnablePprof {
		pprofServer := &http.Server{Addr: "0.0.0.0:6060"}
		slog.InfoContext(ctx, "Starting pprof server", "addr", pprofServer.Addr)

		eg.Go(func() error {
			if err := pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.ErrorContext(ctx, "pprof server failed", "error", err)
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
			defer shutdownCancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if cfg.Performance.EnableMetrics {
		eg.Go(func() error {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					updateRuntimeMetrics()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	// Wire external service clients
	extractor := clients.NewSectionClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout, cfg.Extraction.RetryAttempts)
	llm := clients.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.ChatModel, cfg.LLM.EmbeddingModel, cfg.LLM.Timeout, cfg.LLM.RetryAttempts)

	chroma := clients.NewChromaDBClient(chromaBaseURL, cfg.Storage.Timeout, cfg.Storage.RetryAttempts, cfg.Storage.Tenant, cfg.Storage.Database)
	store := storage.NewChromaResultStore(chroma, llm, cfg.Storage.Collection)
	if err := store.Initialize(ctx); err != nil {
		slog.ErrorContext(ctx, "CRITICAL: Failed to initialize result storage - application cannot function without ChromaDB connectivity",
			"error", err,
			"chroma_url", chromaBaseURL)
		os.Exit(1)
	}

	stageProvider := provider.NewProvider(llm, interfaces.LLMOptions{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if cfg.Pipeline.DOI.Enabled {
		doi := clients.NewDOIClient(cfg.Pipeline.DOI.CrossRefURL, cfg.Pipeline.DOI.UserAgent, cfg.Pipeline.DOI.Timeout, cfg.Pipeline.DOI.RateLimit)
		stageProvider.WithDOIResolver(doi)
	}

	controller := pipeline.NewController(extractor, stageProvider, store, pipeline.Config{
		RunTimeout:        cfg.Pipeline.RunTimeout,
		StageTimeout:      cfg.Pipeline.StageTimeout,
		MinOverviewLength: cfg.Pipeline.MinOverviewLength,
		MinSummaryLength:  cfg.Pipeline.MinSummaryLength,
	})

	subsystem := subsystems.NewAnalysisSubsystem(ctx, controller, extractor, store, subsystems.Config{
		WorkerCount:    cfg.Performance.MaxConcurrentRuns,
		RequestBuffer:  cfg.Performance.QueueSize,
		ResponseBuffer: cfg.Performance.QueueSize,
	})

	if err := subsystem.Start(); err != nil {
		slog.ErrorContext(ctx, "Analysis subsystem failed to start", "error", err)
		os.Exit(1)
	}

	// Run outcome counters feed the expvar metrics endpoint.
	subsystem.Subscribe("metrics", func(resp *subsystems.RunResponse) {
		appMetrics.runsTotal.Add(1)
		if resp.Outcome.Status != "success" {
			appMetrics.runsFailed.Add(1)
		}
	})

	webServer := web.NewServer(ctx, &cfg.Server, subsystem)

	eg.Go(func() error {
		return webServer.Start(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "Shutting down web server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer shutdownCancel()
		return webServer.Stop(shutdownCtx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "Shutting down analysis subsystem")
		return subsystem.Stop()
	})

	appLogger.LogSystemEvent(ctx, "startup", map[string]any{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		slog.ErrorContext(ctx, "Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.LogSystemEvent(ctx, "shutdown", nil)
}
