package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"equiprent/internal/api"
	"equiprent/internal/audit"
	"equiprent/internal/auth"
	"equiprent/internal/availability"
	"equiprent/internal/config"
	"equiprent/internal/database"
	"equiprent/internal/database/postgres"
	"equiprent/internal/domain"
	"equiprent/internal/events"
	"equiprent/internal/logging"
	"equiprent/internal/metrics"
	"equiprent/internal/models"
	"equiprent/internal/repository"
	"equiprent/internal/service"
	"equiprent/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// bookingStore is what both database drivers provide.
type bookingStore interface {
	domain.BookingStore
	domain.EquipmentCatalog
	SyncEquipment(ctx context.Context, items []models.Equipment) error
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	store, ping, closeStore, err := openStore(ctx, cfg, baseLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SyncEquipment(ctx, cfg.Equipment); err != nil {
		return fmt.Errorf("sync equipment: %w", err)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	var (
		cache       domain.ActiveSetCache = repository.NewMemoryActiveSetCache()
		idempotency api.IdempotencyStore  = repository.NewMemoryIdempotencyStore()
	)
	if redisClient != nil {
		cache = repository.NewRedisActiveSetCache(redisClient)
		idempotency = repository.NewRedisIdempotencyStore(redisClient)
	}

	bus := events.NewEventBus(baseLogger)
	stopEvents := startEventSinks(ctx, cfg, bus, baseLogger)
	defer stopEvents()

	index := availability.NewIndex(cache, cfg.Cache.ActiveSetTTL, baseLogger)
	svc := service.NewBookingService(store, store, index, bus, baseLogger)
	equipment := service.NewEquipmentService(store, baseLogger)

	resolver, err := auth.NewResolver(cfg.API.Actor)
	if err != nil {
		return fmt.Errorf("init actor resolver: %w", err)
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, equipment, resolver, idempotency, baseLogger)
	httpServer.AddHealthCheck("database", ping)
	if redisClient != nil {
		httpServer.AddHealthCheck("redis", func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		})
	}

	startMetrics(ctx, cfg, &logger)

	return serve(ctx, httpServer, cfg, &logger)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (bookingStore, api.HealthCheck, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgres.Connect(ctx, cfg.Database.Postgres, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg, pg.Ping, pg.Close, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init database: %w", err)
		}
		return db, db.PingContext, func() { _ = db.Close() }, nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// startEventSinks attaches the optional amqp and mongo consumers to bus.
// A sink that cannot connect is skipped.
func startEventSinks(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) func() {
	var stops []func()

	if cfg.Events.AMQP.URL != "" {
		bridge, err := events.DialAMQP(cfg.Events.AMQP, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("amqp unavailable, continuing without event forwarding")
		} else {
			bridge.Attach(bus)
			bridge.Start(context.WithoutCancel(ctx))
			stops = append(stops, func() {
				if err := bridge.Close(); err != nil {
					logger.Warn().Err(err).Msg("amqp bridge close")
				}
			})
		}
	}

	if cfg.Events.Audit.MongoURI != "" {
		sink, disconnect, err := audit.Connect(ctx, cfg.Events.Audit, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("audit store unavailable, continuing without audit trail")
		} else {
			sink.Attach(bus)
			sink.Start(context.WithoutCancel(ctx))
			stops = append(stops, func() {
				sink.Close()
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = disconnect(dctx)
			})
		}
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
