package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dagent/internal/application/gate"
	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/internal/application/nodes"
	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/internal/application/scheduler"
	"github.com/aescanero/dagent/internal/config"
	"github.com/aescanero/dagent/internal/monitor"
	eventsmemory "github.com/aescanero/dagent/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/dagent/pkg/adapters/events/redis"
	"github.com/aescanero/dagent/pkg/adapters/llm"
	"github.com/aescanero/dagent/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/dagent/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/dagent/pkg/adapters/storage/redis"
	"github.com/aescanero/dagent/pkg/api/grpc"
	"github.com/aescanero/dagent/pkg/api/http"
	"github.com/aescanero/dagent/pkg/api/websocket"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/google/uuid"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// scalingTopic carries scaling.changed events.
const scalingTopic = "scaling"

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting dagent",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	// Storage and events: Redis when enabled, memory otherwise
	var (
		eventBus     ports.EventBus
		stateStorage ports.StateStorage
		redisClient  *goredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		eventBus = eventsredis.NewStreamsEventBus(redisClient, cfg.Redis.StreamMaxLen, logger)
		stateStorage = storageredis.NewStateStorage(redisClient, cfg.Redis.StateTTL, logger)
	} else {
		logger.Info("Redis disabled, using in-memory storage and events")
		eventBus = eventsmemory.NewInMemoryEventBus(logger)
		stateStorage = storagememory.NewInMemoryStateStorage()
	}

	metricsCollector := prometheus.NewCollector(nil)

	// Backends and credential pools
	stack, err := llm.NewStack(&llm.Config{
		Provider:          cfg.LLM.Provider,
		HybridOrder:       cfg.LLM.HybridOrder,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		MaxTokens:         cfg.LLM.DefaultMaxTokens,
		Temperature:       cfg.LLM.DefaultTemperature,
		QuotaCooldown:     cfg.LLM.QuotaCooldown,
		AnthropicKeys:     cfg.Credentials,
		AnthropicModel:    cfg.LLM.DefaultModel,
		OllamaURL:         cfg.LLM.OllamaURL,
		OllamaModel:       cfg.LLM.OllamaModel,
		LMStudioURL:       cfg.LLM.LMStudioURL,
		LMStudioModel:     cfg.LLM.LMStudioModel,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("failed to create LLM backend", zap.Error(err))
	}
	logger.Info("LLM backend ready",
		zap.String("backend", stack.Backend.Name()),
		zap.Int("credentials", len(cfg.Credentials)))

	// Execution core
	resourceMonitor := monitor.NewMonitor(monitor.NewHostSampler(), cfg.Monitor.SampleWindow, metricsCollector, logger.Named("monitor"))
	healer := healing.NewMiddleware(cfg.Scheduler.MaxRetries, logger.Named("healing"))

	notify := func(message string) {
		logger.Info("concurrency policy changed", zap.String("message", message))
		event := domain.Event{
			ID:        uuid.New().String(),
			Type:      domain.EventScaling,
			Timestamp: time.Now(),
			Data:      map[string]any{"message": message},
		}
		if err := eventBus.Publish(context.Background(), scalingTopic, event); err != nil {
			logger.Warn("failed to publish scaling event", zap.Error(err))
		}
	}

	sched := scheduler.New(scheduler.Config{
		BaseConcurrency: cfg.Scheduler.BaseConcurrency,
		MaxSteps:        cfg.Scheduler.MaxSteps,
		ScalingInterval: cfg.Scheduler.ScalingInterval,
		HealthInterval:  cfg.Scheduler.HealthCheckInterval,
	}, resourceMonitor, healer, notify, metricsCollector, logger.Named("scheduler"))

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	var confirm gate.Confirmer
	if cfg.Gate.AutoApprove {
		confirm = func(ctx context.Context, tool string, args map[string]any) (bool, error) {
			logger.Warn("auto-approving unsafe tool", zap.String("tool", tool))
			return true, nil
		}
	}
	toolGate := gate.New(cfg.Gate.UnsafeTools, confirm, logger.Named("gate"))
	builder := nodes.NewBuilder(stack.Backend, toolGate, nil, logger.Named("nodes"))

	orchestratorMgr := orchestrator.NewManager(
		sched,
		builder,
		eventBus,
		stateStorage,
		metricsCollector,
		orchestrator.NewValidator(cfg.Scheduler.MaxRetries),
		logger.Named("orchestrator"),
		cfg.Timeouts.RunTimeout,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Addr:         cfg.GetHTTPAddr(),
		Orchestrator: orchestratorMgr,
		Scheduler:    sched,
		Credentials:  stack.Credentials,
		Stream:       websocket.NewHandler(eventBus, logger),
		Logger:       logger,
	})

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Addr:         cfg.GetGRPCAddr(),
		Availability: stack.Credentials,
		Interval:     cfg.Scheduler.ScalingInterval,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("dagent started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("base_concurrency", cfg.Scheduler.BaseConcurrency))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("dagent shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
