package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitlist/internal/api"
	"waitlist/internal/config"
	"waitlist/internal/database"
	"waitlist/internal/domain"
	"waitlist/internal/events"
	"waitlist/internal/logging"
	"waitlist/internal/metrics"
	"waitlist/internal/notify"
	"waitlist/internal/repository"
	"waitlist/internal/service"
	"waitlist/internal/sms"
	"waitlist/internal/templates"
	"waitlist/internal/worker"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeCloser, err := initStore(cfg, &logger)
	if err != nil {
		return err
	}
	if storeCloser != nil {
		defer storeCloser.Close()
	}
	if err := seedRestaurants(ctx, store, cfg.Restaurants); err != nil {
		logger.Error().Err(err).Msg("seed restaurants")
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	var broker events.Broker
	var limiter domain.RateLimiter = repository.NewMemoryRateLimiter()
	if redisClient != nil {
		broker = events.NewRedisBroker(redisClient, cfg.FanOut.Channel)
		limiter = repository.NewFailoverRateLimiter(
			repository.NewRedisRateLimiter(redisClient),
			limiter,
			logging.Component(&logger, "rate-limiter"),
		)
	}

	hub := events.NewHub(
		events.NewRegistry(logging.Component(&logger, "registry")),
		broker,
		events.HubOptions{
			InstanceID:     cfg.FanOut.InstanceID,
			PublishTimeout: cfg.FanOut.PublishTimeout,
			OutboxSize:     cfg.FanOut.OutboxSize,
		},
		logging.Component(&logger, "fanout"),
	)

	dispatcher := notify.New(
		store,
		initSMSProvider(cfg, &logger),
		templates.NewRenderer(logging.Component(&logger, "templates")),
		hub,
		notify.Options{
			From: cfg.SMS.From,
			Retry: worker.RetryPolicy{
				MaxAttempts:   cfg.SMS.MaxAttempts,
				InitialDelay:  cfg.SMS.BaseDelay,
				MaxDelay:      cfg.SMS.MaxDelay,
				BackoffFactor: 2,
			},
			Workers:   cfg.Waitlist.DispatchWorkers,
			QueueSize: cfg.Waitlist.DispatchQueueSize,
			Redis:     redisClient,
		},
		logging.Component(&logger, "dispatcher"),
	)

	scheduler := worker.NewScheduler(cfg.Waitlist.TimerWorkers, logging.Component(&logger, "scheduler"))

	svc := service.NewWaitlistService(store, dispatcher, hub, scheduler, limiter, service.Options{
		GracePeriodMinutes:    cfg.Waitlist.GracePeriodMinutes,
		FollowUpBeforeMinutes: cfg.Waitlist.FollowUpBeforeMinutes,
		AverageTurnMinutes:    cfg.Waitlist.AverageTurnMinutes,
		CleanAfterComplete:    cfg.Waitlist.CleanAfterComplete,
		DefaultRegion:         cfg.SMS.DefaultRegion,
		InvalidReplyLimit:     cfg.SMS.InvalidReplyLimit,
		InvalidReplyWindow:    cfg.SMS.InvalidReplyWindow,
	}, logging.Component(&logger, "waitlist"))

	if _, err := svc.RestoreTimers(ctx); err != nil {
		logger.Error().Err(err).Msg("restore timers")
		return err
	}

	httpServer := api.NewHTTPServer(cfg, svc, hub, logging.Component(&logger, "http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { dispatcher.Start(gctx); return nil })
	g.Go(func() error { scheduler.Start(gctx); return nil })
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error { return startMetricsServer(gctx, cfg.Monitoring.PrometheusPort, &logger) })
	}

	logger.Info().
		Str("instance_id", hub.InstanceID()).
		Bool("distributed", hub.Distributed()).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("waitlist engine started")

	err = g.Wait()
	logger.Info().Msg("waitlist engine stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.FanOut.InstanceID == "" {
		cfg.FanOut.InstanceID = uuid.NewString()
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App, cfg.FanOut.InstanceID)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

// initStore opens the SQLite store, or an in-memory one when no path is configured.
func initStore(cfg *config.Config, logger *zerolog.Logger) (domain.Store, io.Closer, error) {
	if cfg.Database.Path == "" {
		logger.Warn().Msg("database.path not set, bookings are kept in memory only")
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}
	return db, db, nil
}

func seedRestaurants(ctx context.Context, store domain.Store, restaurants []config.RestaurantConfig) error {
	for i := range restaurants {
		rc := &restaurants[i]
		restaurant := rc.Restaurant
		if err := store.UpsertRestaurant(ctx, &restaurant); err != nil {
			return err
		}
		for j := range rc.Tables {
			table := rc.Tables[j]
			table.RestaurantID = restaurant.ID
			if err := store.UpsertTable(ctx, &table); err != nil {
				return err
			}
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without shared channel")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initSMSProvider(cfg *config.Config, logger *zerolog.Logger) domain.SMSProvider {
	if cfg.SMS.Provider == "twilio" {
		logger.Info().Msg("sms via twilio")
		return sms.NewTwilioClient(cfg.SMS)
	}
	logger.Warn().Msg("sms provider is log, messages are not delivered")
	return sms.NewLogProvider(logging.Component(logger, "sms"))
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) error {
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
		return err
	}
	return nil
}
