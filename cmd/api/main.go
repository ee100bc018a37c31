package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/returns-engine/api/routes"
	"github.com/angelmondragon/returns-engine/internal/dispatch"
	"github.com/angelmondragon/returns-engine/internal/invoices"
	"github.com/angelmondragon/returns-engine/internal/ledger"
	"github.com/angelmondragon/returns-engine/internal/notify"
	"github.com/angelmondragon/returns-engine/internal/orders"
	"github.com/angelmondragon/returns-engine/internal/refunds"
	"github.com/angelmondragon/returns-engine/internal/returns"
	"github.com/angelmondragon/returns-engine/internal/shipping"
	"github.com/angelmondragon/returns-engine/pkg/config"
	"github.com/angelmondragon/returns-engine/pkg/db"
	"github.com/angelmondragon/returns-engine/pkg/idempotency"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/metrics"
	"github.com/angelmondragon/returns-engine/pkg/migrate"
	"github.com/angelmondragon/returns-engine/pkg/redis"
)

const webhookDedupeTTL = 48 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "returns-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "returns-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	executor, err := returns.NewExecutor(returns.NewRegistry(), engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create transition executor", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	reverser, err := refunds.NewReverser(invoices.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create commission reverser", err)
		os.Exit(1)
	}

	notifyService := notify.NewService(notify.NewRepository(dbClient.DB()), logg)

	returnsService, err := returns.NewService(
		dbClient,
		returns.NewRepository(dbClient.DB()),
		executor,
		refunds.NewRepository(dbClient.DB()),
		reverser,
		ledgerService,
		orders.NewRepository(dbClient.DB()),
		notifyService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create returns service", err)
		os.Exit(1)
	}

	partner, err := shipping.NewClient(cfg.Shipping, logg, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping partner client", err)
		os.Exit(1)
	}

	var dispatchBridge shipping.DispatchNotifier
	if bridge := dispatch.NewBridge(cfg.Dispatch, logg); bridge.Enabled() {
		dispatchBridge = bridge
	}

	orchestrator, err := shipping.NewOrchestrator(
		dbClient,
		shipping.NewRepository(dbClient.DB()),
		returns.NewRepository(dbClient.DB()),
		executor,
		partner,
		dispatchBridge,
		notifyService,
		logg,
		engineMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create pickup orchestrator", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, webhookDedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting returns api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, returnsService, orchestrator, webhookGuard),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "error draining http server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "returns api shut down gracefully")
}
