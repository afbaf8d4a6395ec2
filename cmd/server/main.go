package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebridge/voice-gateway/internal/config"
	"github.com/voicebridge/voice-gateway/internal/gateway"
	"github.com/voicebridge/voice-gateway/internal/modelservice"
	"github.com/voicebridge/voice-gateway/internal/observability"
	"github.com/voicebridge/voice-gateway/internal/resilience"
	"github.com/voicebridge/voice-gateway/internal/session"
	"github.com/voicebridge/voice-gateway/internal/tools"
)

// healthCounts aggregates the live counters for the health endpoint
type healthCounts struct {
	manager *session.Manager
	handler *gateway.Handler
}

func (h healthCounts) ActiveSessions() int    { return h.manager.ActiveSessions() }
func (h healthCounts) SocketConnections() int { return h.handler.SocketConnections() }
func (h healthCounts) Regions() []string      { return h.manager.Regions() }

func buildToolRegistry(cfg *config.Config) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewWeatherTool())
	registry.Register(tools.NewGeocodeTool())
	registry.Register(tools.NewWikipediaTool())
	registry.Register(tools.NewDateTimeTool())
	registry.Register(tools.NewReasonerTool(tools.ReasonerConfig{
		Region:  cfg.DefaultRegion,
		ModelID: cfg.ReasoningModelID,
	}))
	if cfg.KnowledgeBaseID != "" {
		registry.Register(tools.NewKnowledgeBaseTool(tools.KnowledgeBaseConfig{
			Region:          cfg.DefaultRegion,
			KnowledgeBaseID: cfg.KnowledgeBaseID,
			ModelARN:        cfg.KnowledgeBaseModelARN,
			MaxFailures:     cfg.CircuitBreakerMaxFailures,
			ResetTimeout:    time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
		}))
	}
	return registry
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.InitLogger("info", false)
		logger := observability.GetLogger()
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()
	logger.Info().
		Str("region", cfg.DefaultRegion).
		Str("model_id", cfg.ModelID).
		Str("port", cfg.Port).
		Msg("Starting voice gateway")

	toolRegistry := buildToolRegistry(cfg)
	logger.Info().Strs("tools", toolRegistry.Names()).Msg("Tool registry initialized")

	models := modelservice.NewRegistry(modelservice.BedrockDialer(modelservice.BedrockOptions{
		StreamTimeout: time.Duration(cfg.ModelTimeoutSeconds) * time.Second,
		MaxStreams:    cfg.MaxStreamsPerClient,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2,
			Jitter:            true,
		},
	}), cfg.MaxConcurrentStreams)

	manager := session.NewManager(models, toolRegistry, session.ManagerOptions{
		SweepInterval:   time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		IdleTimeout:     time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.ShutdownDeadlineSeconds) * time.Second,
	})
	manager.StartSweeper()

	wsHandler := gateway.NewHandler(cfg, manager)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/health", observability.HealthCheckHandler(healthCounts{manager: manager, handler: wsHandler}))
	mux.HandleFunc("/api/tools", gateway.ToolsHandler(toolRegistry, cfg.EnabledToolList()))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}

	deadline := time.Duration(cfg.ShutdownDeadlineSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	shutdownErr := manager.Shutdown(ctx)
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
		shutdownErr = err
	}

	if shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("Shutdown exceeded deadline")
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}
