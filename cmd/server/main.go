package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/picknpay/internal/cache"
	api "github.com/fjod/picknpay/internal/http"
	"github.com/fjod/picknpay/internal/publisher"
	"github.com/fjod/picknpay/internal/push"
	"github.com/fjod/picknpay/internal/realtime"
	"github.com/fjod/picknpay/internal/repository"
	"github.com/fjod/picknpay/internal/service"
	"github.com/fjod/picknpay/pkg/config"
	"github.com/fjod/picknpay/pkg/logger"
	"github.com/fjod/picknpay/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, cfg.OTelServiceName)
	slog.SetDefault(log)
	log.Info("picknpay starting", "port", cfg.HTTPPort, "order_store", cfg.OrderStore)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()
	var wg sync.WaitGroup

	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.Options{
			ServiceName: cfg.OTelServiceName,
			Endpoint:    cfg.OTelEndpoint,
			Environment: cfg.OTelEnvironment,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
		}()
		log.Info("tracing enabled", "endpoint", cfg.OTelEndpoint)
	}

	// MongoDB: carts, menu and device tokens
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	log.Info("connected to MongoDB", "uri", cfg.MongoURI, "database", cfg.MongoDBName)

	cartRepo := repository.NewMongoCartRepository(mongoDB)
	deviceRepo := repository.NewMongoDeviceRepository(mongoDB)
	menuRepo := repository.NewMongoMenuRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		return err
	}
	if err := deviceRepo.CreateIndexes(ctx); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

	orderRepo, outbox, err := openOrderStore(cfg, log)
	if err != nil {
		return err
	}
	defer orderRepo.Close()

	hub := realtime.NewHub(log)
	events := realtime.NewRouter(hub, log)

	sender, err := newPushSender(ctx, cfg, log)
	if err != nil {
		return err
	}
	gateway := push.NewGateway(sender, deviceRepo, hub, push.Options{
		Timeout:         cfg.PushTimeout,
		RatePerSecond:   cfg.PushRatePerSecond,
		Burst:           cfg.PushBurst,
		OnlyWhenOffline: cfg.PushOnlyWhenOffline,
	}, log)

	menuService := service.NewMenuService(menuRepo, log)
	cartService := service.NewCartService(cartRepo, menuService, cache.NewRedisCache(redisClient), log)
	orderService := service.NewOrderService(orderRepo, cartService, menuService, events, gateway, service.OrderServiceConfig{
		AdminIdentity:       cfg.AdminIdentity,
		PickupTokenAttempts: cfg.PickupTokenTries,
	}, log)
	deviceService := service.NewDeviceService(deviceRepo, log)

	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()
	var outboxPoller *publisher.OutboxPoller
	if outbox != nil {
		outboxPoller = publisher.NewOutboxPoller(outbox, cfg.OrderEventsTopic, log, cfg.KafkaBrokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			outboxPoller.Run(pollerCtx)
		}()
		log.Info("outbox poller started", "topic", cfg.OrderEventsTopic, "brokers", cfg.KafkaBrokers)
	}

	handler := api.NewRouter(api.RouterConfig{
		AdminIdentity:      cfg.AdminIdentity,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		ServiceName:        cfg.OTelServiceName,
	}, api.Services{
		Carts:   cartService,
		Orders:  orderService,
		Menu:    menuService,
		Devices: deviceService,
	}, realtime.NewHandler(hub, api.CallerResolver(cfg.AdminIdentity), log), log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	hub.Close()
	pollerCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("background workers didn't stop in time")
	}

	if outboxPoller != nil {
		if err := outboxPoller.Close(); err != nil {
			log.Warn("failed to close kafka writer", "error", err)
		}
	}
	if err := gateway.Close(shutdownCtx); err != nil {
		log.Warn("push gateway didn't drain in time", "error", err)
	}
	return nil
}

// openOrderStore returns the configured order repository and, when the outbox
// is enabled, the same store as an outbox source.
func openOrderStore(cfg *config.Config, log *slog.Logger) (repository.OrderRepository, repository.OutboxRepository, error) {
	if cfg.OrderStore == config.OrderStoreMemory {
		log.Warn("using in-memory order store, orders are lost on restart")
		return repository.NewMemoryOrderRepository(), nil, nil
	}

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewPostgresOrderRepository(creds, cfg.OutboxEnabled)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.RunMigrations(creds); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	log.Info("database migrations completed", "host", cfg.DBHost, "database", cfg.DBName)

	if !cfg.OutboxEnabled {
		return repo, nil, nil
	}
	return repo, repo, nil
}

func newPushSender(ctx context.Context, cfg *config.Config, log *slog.Logger) (push.Sender, error) {
	if cfg.FirebaseCredentialsFile == "" {
		log.Warn("FIREBASE_CREDENTIALS_FILE not set, push notifications are only logged")
		return push.NewLogSender(log), nil
	}
	sender, err := push.NewFCMSender(ctx, cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, err
	}
	log.Info("firebase messaging initialised")
	return sender, nil
}
