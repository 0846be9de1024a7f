package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/pincex_futures/api"
	"github.com/Aidin1998/pincex_futures/internal/config"
	"github.com/Aidin1998/pincex_futures/internal/database"
	"github.com/Aidin1998/pincex_futures/internal/marketdata"
	"github.com/Aidin1998/pincex_futures/internal/trading/engine"
	"github.com/Aidin1998/pincex_futures/internal/trading/events"
	"github.com/Aidin1998/pincex_futures/internal/trading/gateway"
	"github.com/Aidin1998/pincex_futures/internal/trading/lock"
	"github.com/Aidin1998/pincex_futures/internal/trading/messaging"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/Aidin1998/pincex_futures/internal/trading/repository"
	"github.com/Aidin1998/pincex_futures/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("FUTURES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := setupTracing(cfg.Tracing.ServiceName)
		if err != nil {
			zapLogger.Fatal("Failed to set up tracing", zap.Error(err))
		}
		defer shutdownTracing(context.Background())
	}

	store, health, err := openStore(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open store", zap.String("type", cfg.Storage.Type), zap.Error(err))
	}
	defer store.Close()

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		redisClient = client
	}

	var locker lock.Locker = lock.NewLocalLocker(cfg.Engine.LockTimeout)
	if cfg.Engine.LockBackend == "redis" {
		locker = lock.NewRedisLocker(redisClient, cfg.Engine.LockTimeout, cfg.Engine.LockTTL, zapLogger)
	}

	// Post-commit fan-out: in-process bus for the websocket feed, plus
	// redis tickers and kafka when enabled.
	bus := events.NewInMemoryEventBus(zapLogger)
	publishers := events.Fanout{bus}
	var tickers *marketdata.TickerCache
	if redisClient != nil {
		tickers = marketdata.NewTickerCache(redisClient, cfg.Redis.TickerTTL, zapLogger)
		publishers = append(publishers, tickers)
	}
	if cfg.Kafka.Enabled {
		kcfg := messaging.DefaultKafkaClientConfig()
		kcfg.BatchTimeout = cfg.Kafka.BatchTimeout
		kafkaBus := events.NewKafkaEventBus(messaging.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic, kcfg, zapLogger))
		defer kafkaBus.Close()
		publishers = append(publishers, kafkaBus)
	}

	clock := model.NewClock()
	reg := registry.NewRegistry(store, clock, zapLogger)
	eng := engine.NewEngine(store, locker, zapLogger, engine.WithClock(clock), engine.WithPublisher(publishers))
	gw := gateway.NewGateway(eng, reg, store, zapLogger)

	server := api.NewServer(cfg.Server, api.Dependencies{
		Gateway:  gw,
		Registry: reg,
		Feed:     marketdata.NewHub(bus, cfg.Server.AllowedOrigins, zapLogger),
		Tickers:  tickers,
		Health:   health,
	}, zapLogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			zapLogger.Error("API server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}
	zapLogger.Info("futuresd stopped")
}

// openStore builds the configured store and its health probe.
func openStore(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (model.Store, func(context.Context) error, error) {
	noProbe := func(context.Context) error { return nil }

	switch cfg.Storage.Type {
	case "memory":
		return repository.NewMemoryStore(), noProbe, nil
	case "badger":
		s, err := repository.NewBadgerStore(cfg.Storage.BadgerPath, zapLogger)
		if err != nil {
			return nil, nil, err
		}
		return s, noProbe, nil
	case "gorm":
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		s := repository.NewGormStore(db, zapLogger)
		if cfg.Database.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
		}
		go database.ReportPoolStats(ctx, db, cfg.Database.Driver, 30*time.Second, zapLogger)
		return s, func(ctx context.Context) error { return database.Ping(ctx, db) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// setupTracing installs a stdout span exporter as the global provider.
func setupTracing(serviceName string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
