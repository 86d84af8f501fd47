package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ismaiel54/event-sink/internal/api"
	"github.com/ismaiel54/event-sink/internal/chaos"
	"github.com/ismaiel54/event-sink/internal/config"
	"github.com/ismaiel54/event-sink/internal/logging"
	"github.com/ismaiel54/event-sink/internal/msg"
	"github.com/ismaiel54/event-sink/internal/observability"
	"github.com/ismaiel54/event-sink/internal/persist"
	"github.com/ismaiel54/event-sink/internal/query"
	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("event-sink")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	kafkaCfg := cfg.Kafka()
	logger.Info("starting event-sink service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Strings("kafka_brokers", kafkaCfg.Brokers),
		zap.String("topic", kafkaCfg.Topic),
		zap.String("group", kafkaCfg.GroupID),
		zap.String("store_driver", cfg.StoreDriver),
	)

	ctx := context.Background()

	// Open store
	baseStore, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	var st store.Store = baseStore
	if cfg.Chaos.Enabled {
		c, err := chaos.New(cfg.Chaos, logger)
		if err != nil {
			logger.Fatal("invalid chaos configuration", zap.Error(err))
		}
		st = chaos.WrapStore(baseStore, c)
		logger.Warn("chaos enabled for store",
			zap.Int("drop_pct", cfg.Chaos.DropPct),
			zap.String("profile", cfg.Chaos.Profile),
		)
	}

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.AddCheck("store", baseStore.Ping)

	// Optional read cache
	var (
		redisClient *redis.Client
		queryOpts   []query.Option
		persistOpts []persist.Option
	)
	if cfg.RedisAddr != "" {
		redisClient, err = query.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("read cache disabled", zap.String("redis_addr", cfg.RedisAddr), zap.Error(err))
		} else {
			cache := query.NewRecentCache(redisClient, cfg.CacheTTL)
			queryOpts = append(queryOpts, query.WithCache(cache))
			persistOpts = append(persistOpts, persist.WithInvalidator(cache))
			logger.Info("read cache enabled", zap.String("redis_addr", cfg.RedisAddr))
		}
	}

	persister := persist.New(st, logger, persistOpts...)
	queryService := query.NewService(st, logger, queryOpts...)

	// Start gRPC health server
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	// Start HTTP read API
	router := api.NewRouter(api.NewHandlers(queryService, logger), healthChecker.Handler(), logger)
	httpServer := api.NewServer(cfg.HTTPAddr(), router)

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
	}()

	// Start consumer
	consumer := msg.NewStreamConsumer(cfg.Consumer(), msg.KafkaDialer(kafkaCfg, logger), persister, logger)
	healthChecker.AddCheck("consumer", consumer.Healthy)

	startCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := consumer.Start(startCtx); err != nil {
		if startCtx.Err() != nil {
			logger.Info("shutdown requested while connecting")
			st.Close()
			return
		}
		if errors.Is(err, msg.ErrConnection) {
			logger.Fatal("failed to connect to kafka", zap.Error(err))
		}
		logger.Fatal("failed to start consumer", zap.Error(err))
	}
	healthChecker.SetConsumerReady(true)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
		exitCode = 1
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
		exitCode = 1
	case <-consumer.Done():
		if err := consumer.Err(); err != nil {
			logger.Error("consumer error", zap.Error(err))
			exitCode = 1
		}
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	healthChecker.SetConsumerReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping consumer", zap.Error(err))
		exitCode = 1
	}

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if redisClient != nil {
		redisClient.Close()
	}
	if err := st.Close(); err != nil {
		logger.Error("error closing store", zap.Error(err))
	}

	logger.Info("event-sink service stopped", zap.Int("exit_code", exitCode))
	logger.Sync()
	os.Exit(exitCode)
}
