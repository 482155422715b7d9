package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-node-triplestore/internal/acquire"
	"github.com/aescanero/dago-node-triplestore/internal/config"
	"github.com/aescanero/dago-node-triplestore/internal/protocol"
	"github.com/aescanero/dago-node-triplestore/internal/transport"
	"github.com/aescanero/dago-node-triplestore/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
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
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting store worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// Initialize transport (Redis Streams implementation)
	streams := transport.NewRedisStreams(redisClient, transport.RedisStreamsOptions{
		Consumer:       cfg.WorkerID,
		Group:          cfg.ConsumerGroup,
		InboundStream:  cfg.InboundStream,
		OutboundStream: cfg.OutboundStream,
		BlockTime:      cfg.BlockTime,
	}, logger)
	if err := streams.EnsureGroup(ctx); err != nil {
		logger.Fatal("failed to create consumer group", zap.Error(err))
	}

	// Initialize fetcher
	fetcher := acquire.NewFetcher(acquire.Options{
		Timeout:  cfg.FetchTimeout,
		MaxBytes: cfg.FetchMaxBytes,
	}, logger)

	// Initialize worker
	w, err := worker.NewWorker(streams, fetcher, worker.OptionsFromConfig(cfg), logger)
	if err != nil {
		logger.Fatal("failed to create worker", zap.Error(err))
	}

	// Queue the configured source as the first config message
	if cfg.HasBootstrapLoad() {
		if err := publishBootstrapLoad(ctx, redisClient, cfg, logger); err != nil {
			logger.Fatal("failed to queue bootstrap load", zap.Error(err))
		}
	}

	// Start worker
	w.Start(context.Background())

	// Start health server
	healthServer := worker.NewHealthServer(cfg.HealthPort, redisClient, w, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("store worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop health server
	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	// Stop worker
	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}
	if err := streams.Close(); err != nil {
		logger.Error("failed to close transport", zap.Error(err))
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	default:
		logger.Info("worker stopped gracefully")
	}
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
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

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// bootstrapConfig builds the config message for the source set in the environment
func bootstrapConfig(cfg *config.Config) (*protocol.LoadConfig, error) {
	union, err := protocol.ParseFlagString(cfg.UnionDefaultGraph)
	if err != nil {
		return nil, fmt.Errorf("invalid UNION_DEFAULT_GRAPH: %w", err)
	}

	return &protocol.LoadConfig{
		URL:               cfg.SourceURL,
		ContentType:       cfg.SourceFormat,
		BaseIRI:           cfg.BaseIRI,
		GraphName:         cfg.GraphName,
		UnionDefaultGraph: union,
	}, nil
}

// publishBootstrapLoad appends the bootstrap config to the inbound stream,
// the same way a supervisor would
func publishBootstrapLoad(ctx context.Context, client *redis.Client, cfg *config.Config, logger *zap.Logger) error {
	msg, err := bootstrapConfig(cfg)
	if err != nil {
		return err
	}
	data, err := protocol.EncodeInbound(msg)
	if err != nil {
		return err
	}

	supervisorSide := transport.NewRedisStreams(client, transport.RedisStreamsOptions{
		OutboundStream: cfg.InboundStream,
	}, logger)
	if err := supervisorSide.Send(ctx, data); err != nil {
		return err
	}

	logger.Info("queued bootstrap load",
		zap.String("source", msg.URL),
		zap.String("format", msg.ContentType),
		zap.String("graph", msg.GraphName),
		zap.Bool("union_default_graph", msg.UnionDefaultGraph),
	)
	return nil
}
