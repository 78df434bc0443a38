// The terminal service: terminal registry, open/close
// lifecycle, cash in/out, and the producer-side delivery tracker for
// cashlog/opencloselog events.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/terminal"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/config"
	"github.com/kugelpos/transactional-core/infrastructure/database"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/resilience"
	"github.com/kugelpos/transactional-core/infrastructure/service"
)

func main() {
	config.LoadDotEnv("")
	logger := logging.NewFromEnv("terminal-service")

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

	publisher := events.NewHTTPPublisher(nil, brokerEndpoints())
	tracker := delivery.NewTracker(
		database.NewDeliveryRepository(db, "status_terminallog_delivery"),
		publisher,
		resilience.New(resilience.DefaultConfig()),
		logger,
		delivery.SweepConfig{
			IntervalMinutes:     settings.UndeliveredCheckIntervalMinutes,
			FailedPeriodMinutes: settings.UndeliveredCheckFailedPeriodMinutes,
			LookbackHours:       settings.UndeliveredCheckPeriodHours,
		},
	)

	svc := terminal.NewService(
		database.NewTerminalRepository(db),
		database.NewTerminalCounterRepository(db),
		database.NewTranlogRepository(db),
		tracker,
		logger,
	)

	base := service.NewBase("terminal-service", logger).WithHealthCheck(db.HealthCheck)
	base.AddTickerWorker(time.Duration(settings.UndeliveredCheckIntervalMinutes)*time.Minute, tracker.RunSweep)

	metrics := middleware.NewMetrics("terminal-service")
	h := &handlers{
		svc:           svc,
		tracker:       tracker,
		base:          base,
		logger:        logger,
		jwtSecret:     []byte(config.EnvOrDefault("JWT_SECRET", "dev-secret")),
		serviceSecret: []byte(config.EnvOrDefault("SERVICE_TOKEN_SECRET", "dev-service-secret")),
	}

	router := mux.NewRouter()
	h.mount(router, metrics)

	limiter := middleware.NewRateLimiter(50, 100)
	chain := middleware.Recover(logger)(middleware.RequestLog(logger)(middleware.CORS(limiter.Middleware(middleware.ByRemoteAddr)(router))))

	server := &http.Server{
		Addr:         ":" + config.EnvOrDefault("PORT", "8001"),
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("terminal service listening")
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

// brokerEndpoints maps each pub/sub topic to its broker ingress URL.
func brokerEndpoints() map[string]string {
	endpoints := map[string]string{}
	if u := config.EnvOrDefault("BROKER_CASHLOG_URL", ""); u != "" {
		endpoints[events.TopicCashLog] = u
	}
	if u := config.EnvOrDefault("BROKER_OPENCLOSELOG_URL", ""); u != "" {
		endpoints[events.TopicOpenCloseLog] = u
	}
	return endpoints
}

// routeTemplate labels metrics with the mux route template, never the raw
// path, so per-terminal ids don't explode label cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
