// The stock service: the idempotent tranlog consumer,
// per-item inventory, reorder alerts, and scheduled per-tenant snapshots.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/kugelpos/transactional-core/domain/stock"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/config"
	"github.com/kugelpos/transactional-core/infrastructure/database"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/service"
	"github.com/kugelpos/transactional-core/infrastructure/state"
)

func main() {
	config.LoadDotEnv("")
	logger := logging.NewFromEnv("stock-service")

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

	stockRepo := database.NewStockRepository(db)
	snapRepo := database.NewStockSnapshotRepository(db)

	// Processed event ids outlive the republish sweep's lookback window so
	// no redelivery can slip past the dedup check.
	idemTTL := time.Duration(settings.UndeliveredCheckPeriodHours+24) * time.Hour
	idemp := state.NewIdempotencyStore(backend, "stock-event", idemTTL)

	var alerts stock.AlertPublisher
	if url := config.EnvOrDefault("BROKER_STOCK_ALERT_URL", ""); url != "" {
		alerts = events.NewHTTPPublisher(nil, map[string]string{events.TopicStockAlert: url})
	}

	consumer := stock.NewConsumer(stockRepo, idemp, alerts, logger)

	scheduler := stock.NewSnapshotScheduler(stockRepo, snapRepo, logger)
	if err := scheduler.Configure(snapshotSchedules(settings)); err != nil {
		logger.WithError(err).Fatal("configure snapshot scheduler")
	}
	scheduler.Start()
	defer scheduler.Stop()

	base := service.NewBase("stock-service", logger).WithHealthCheck(db.HealthCheck)
	metrics := middleware.NewMetrics("stock-service")

	h := &handlers{
		consumer:      consumer,
		repo:          stockRepo,
		scheduler:     scheduler,
		base:          base,
		logger:        logger,
		jwtSecret:     []byte(config.EnvOrDefault("JWT_SECRET", "dev-secret")),
		serviceSecret: []byte(config.EnvOrDefault("SERVICE_TOKEN_SECRET", "dev-service-secret")),
		cartURL:       config.EnvOrDefault("CART_SERVICE_URL", "http://localhost:8003"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}

	router := mux.NewRouter()
	h.mount(router, metrics)
	chain := middleware.Recover(logger)(middleware.RequestLog(logger)(middleware.CORS(router)))

	server := &http.Server{
		Addr:         ":" + config.EnvOrDefault("PORT", "8006"),
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("stock service listening")
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

func stateBackend() state.PersistenceBackend {
	if url := config.EnvOrDefault("REDIS_URL", ""); url != "" {
		opts, err := redis.ParseURL(url)
		if err == nil {
			return state.NewRedisBackend(redis.NewClient(opts))
		}
	}
	return state.NewMemoryBackend(time.Minute)
}

// snapshotSchedules builds one schedule per tenant named in
// STOCK_SNAPSHOT_TENANTS, at the tenant-default cadence (daily/weekly/
// monthly), with retention clamped to the configured bounds.
func snapshotSchedules(settings config.Settings) []stock.TenantSchedule {
	cronExpr := map[string]string{
		"daily":   "0 3 * * *",
		"weekly":  "0 3 * * 0",
		"monthly": "0 3 1 * *",
	}[settings.DefaultSnapshotSchedule]
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}

	retention := settings.DefaultSnapshotRetentionDays
	if retention < settings.MinSnapshotRetentionDays {
		retention = settings.MinSnapshotRetentionDays
	}
	if retention > settings.MaxSnapshotRetentionDays {
		retention = settings.MaxSnapshotRetentionDays
	}

	var schedules []stock.TenantSchedule
	for _, tenant := range strings.Split(config.EnvOrDefault("STOCK_SNAPSHOT_TENANTS", ""), ",") {
		if tenant = strings.TrimSpace(tenant); tenant != "" {
			schedules = append(schedules, stock.TenantSchedule{TenantID: tenant, CronExpr: cronExpr, RetentionDays: retention})
		}
	}
	return schedules
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
