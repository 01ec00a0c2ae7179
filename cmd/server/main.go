package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/internal/config"
	infrahttp "github.com/traceprint/api/internal/infra/http"
	"github.com/traceprint/api/internal/infra/http/handler"
	"github.com/traceprint/api/internal/infra/http/routes"
	"github.com/traceprint/api/internal/infra/jobs"
	"github.com/traceprint/api/internal/infra/postgres"
	"github.com/traceprint/api/internal/infra/providers"
	"github.com/traceprint/api/internal/infra/redis"
	"github.com/traceprint/api/internal/infra/websocket"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
	"github.com/traceprint/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// Infrastructure.
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	catalog, err := provider.LoadCatalog(cfg.Providers.CatalogPath)
	if err != nil {
		log.Error("failed to load provider catalog", "path", cfg.Providers.CatalogPath, "error", err)
		return 1
	}
	log.Info("provider catalog loaded", "providers", catalog.Len())

	// Repositories and stores.
	scanRepo := postgres.NewScanRepository(db)
	findingRepo := postgres.NewFindingRepository(db)
	resultRepo := postgres.NewProviderResultRepository(db)
	policyRepo := postgres.NewBudgetPolicyRepository(db)
	alertRepo := postgres.NewBudgetAlertRepository(db)

	usageStore := redis.NewUsageStore(redisClient)
	alertWindow := redis.NewAlertWindow(redisClient)
	cancelStore := redis.NewCancelStore(redisClient)

	// Progress broadcasting: publish to redis, relay received messages to
	// the websocket hub.
	notifier := redis.NewProgressNotifier(redisClient, log)
	hub := websocket.NewHub(log)
	hub.SetAuthorizeFunc(newScanChannelAuthorizer(scanRepo, log))
	notifier.OnMessage(func(m *redis.ProgressMessage) {
		hub.BroadcastEvent(redis.ProgressChannel(m.ScanID), string(m.Event), m.Payload)
	})
	go notifier.StartListener(ctx)
	go hub.Run(ctx)
	log.Info("websocket hub started")

	// Job queue.
	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer closeWithLog(jobClient, "job client", log)

	// Services.
	registry := providers.NewRegistry(cfg.Providers.Credentials, log)
	dispatcher := app.NewDispatcher(registry, cfg.Providers.Credentials, log)
	guard := app.NewBudgetGuard(policyRepo, usageStore, alertRepo, alertWindow, cfg.Budget.AlertWindow, log)

	scanService := app.NewScanService(
		scanRepo, findingRepo, resultRepo,
		catalog, dispatcher, guard,
		notifier, cancelStore, jobClient,
		app.ScanServiceConfig{
			MaxConcurrentProviders: cfg.Scan.MaxConcurrentProviders,
			GlobalDeadline:         cfg.Scan.GlobalDeadline,
		},
		log,
	)
	budgetService := app.NewBudgetService(policyRepo, alertRepo, guard, catalog, log)
	log.Info("services initialized")

	// Monitor scheduler.
	scheduler := app.NewMonitorScheduler(scanRepo, jobClient, cfg.Scan.MonitorInterval, log)
	go scheduler.Run(ctx)

	// Worker.
	var worker *jobs.Worker
	if cfg.Worker.Enabled {
		worker = jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Worker.Concurrency,
		}, scanService, log)
		if err := worker.Start(); err != nil {
			log.Error("failed to start worker", "error", err)
			return 1
		}
	}

	// HTTP server.
	v := validator.New()
	handlers := &routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(db),
			handler.WithRedis(redisClient),
		),
		Provider:  handler.NewProviderHandler(catalog),
		Scan:      handler.NewScanHandler(scanService, v, cfg.Scan.SyncProviderLimit),
		Budget:    handler.NewBudgetHandler(budgetService, v),
		WebSocket: websocket.NewHandler(hub, log),
	}

	server := infrahttp.NewServer(cfg, log)
	routes.Register(server.Router(), handlers, cfg.Server.RequestTimeout)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop background loops first so nothing publishes into a closing hub.
	stop()
	if worker != nil {
		worker.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
