// The cart service: cart FSM, pricing engine,
// payment strategies, the transaction finaliser, and the producer-side
// delivery tracker for tranlog events.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/money"
	"github.com/kugelpos/transactional-core/domain/payment"
	"github.com/kugelpos/transactional-core/domain/tranlog"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/config"
	"github.com/kugelpos/transactional-core/infrastructure/database"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/resilience"
	"github.com/kugelpos/transactional-core/infrastructure/service"
	"github.com/kugelpos/transactional-core/infrastructure/state"
)

func main() {
	config.LoadDotEnv("")
	logger := logging.NewFromEnv("cart-service")

	settings, err := config.LoadSettings(config.EnvOrDefault("SETTINGS_FILE", ""))
	if err != nil {
		logger.WithError(err).Fatal("load settings")
	}

	dsn, err := config.RequireEnv("DATABASE_URL")
	if err != nil {
		logger.WithError(err).Fatal("configuration")
	}
	if dir := config.EnvOrDefault("MIGRATIONS_DIR", ""); dir != "" {
		if err := database.Migrate(dsn, dir); err != nil {
			logger.WithError(err).Fatal("migrate")
		}
	}

	ctx := context.Background()
	db, err := database.Open(ctx, dsn)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	defer db.Close()

	backend := stateBackend()
	defer backend.Close(ctx)

	httpClient := sharedHTTPClient()
	serviceSecret := []byte(config.EnvOrDefault("SERVICE_TOKEN_SECRET", "dev-service-secret"))
	tokenFn := serviceTokenFn(serviceSecret, "cart-service")

	masters := master.NewCache(backend, master.NewHTTPStore(httpClient, config.EnvOrDefault("MASTER_DATA_URL", "http://localhost:8002"), tokenFn), 5*time.Minute)
	terminals := cart.NewCachedTerminalLookup(backend, 30*time.Second, &terminalClient{
		client:  httpClient,
		baseURL: config.EnvOrDefault("TERMINAL_SERVICE_URL", "http://localhost:8001"),
		token:   tokenFn,
	})

	cartRepo := cart.NewCacheRepository(backend, 4*time.Hour)
	cartSvc := cart.NewService(cartRepo, masters, terminals, payment.NewRegistry(), money.Mode(settings.RoundingMode))

	publisher := events.NewHTTPPublisher(httpClient, map[string]string{
		events.TopicTranlog: config.EnvOrDefault("BROKER_TRANLOG_URL", ""),
	})
	tracker := delivery.NewTracker(
		database.NewDeliveryRepository(db, "status_tranlog_delivery"),
		publisher,
		resilience.New(resilience.DefaultConfig()),
		logger,
		delivery.SweepConfig{
			IntervalMinutes:     settings.UndeliveredCheckIntervalMinutes,
			FailedPeriodMinutes: settings.UndeliveredCheckFailedPeriodMinutes,
			LookbackHours:       settings.UndeliveredCheckPeriodHours,
		},
	)

	tranlogRepo := database.NewTranlogRepository(db)
	finaliser := tranlog.NewFinaliser(
		tranlogRepo,
		database.NewTranlogStatusRepository(db),
		database.NewTranlogCounterRepository(db),
		tracker,
		nil,
		settings,
		logger,
	)

	base := service.NewBase("cart-service", logger).WithHealthCheck(db.HealthCheck)
	base.AddTickerWorker(time.Duration(settings.UndeliveredCheckIntervalMinutes)*time.Minute, tracker.RunSweep)

	metrics := middleware.NewMetrics("cart-service")
	h := &handlers{
		carts:         cartSvc,
		cartRepo:      cartRepo,
		finaliser:     finaliser,
		tranlogs:      tranlogRepo,
		statuses:      database.NewTranlogStatusRepository(db),
		tracker:       tracker,
		keyVerifier:   newAPIKeyVerifier(httpClient, config.EnvOrDefault("TERMINAL_SERVICE_URL", "http://localhost:8001"), backend),
		base:          base,
		logger:        logger,
		jwtSecret:     []byte(config.EnvOrDefault("JWT_SECRET", "dev-secret")),
		serviceSecret: serviceSecret,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recover(logger))
	router.Use(middleware.RequestLog(logger))
	router.Use(middleware.CORS)
	router.Use(middleware.NewRateLimiter(100, 200).Middleware(middleware.ByRemoteAddr))
	router.Use(metrics.Middleware(chiRouteTemplate))
	h.mount(router, metrics)

	server := &http.Server{
		Addr:         ":" + config.EnvOrDefault("PORT", "8003"),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("cart service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	base.Stop()
}

// stateBackend picks Redis when configured (multiple replicas sharing the
// cart cache), falling back to the in-process map.
func stateBackend() state.PersistenceBackend {
	if url := config.EnvOrDefault("REDIS_URL", ""); url != "" {
		opts, err := redis.ParseURL(url)
		if err == nil {
			return state.NewRedisBackend(redis.NewClient(opts))
		}
	}
	return state.NewMemoryBackend(time.Minute)
}

// chiRouteTemplate labels metrics with the chi route pattern, never the
// raw path, so per-cart uuids don't explode label cardinality.
func chiRouteTemplate(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
