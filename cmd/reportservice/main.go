// The report service: the sales aggregation pipeline,
// the pluggable report registry, and the reconciliation gate in front of
// daily reports.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kugelpos/transactional-core/domain/report"
	"github.com/kugelpos/transactional-core/infrastructure/config"
	"github.com/kugelpos/transactional-core/infrastructure/database"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/service"
)

func main() {
	config.LoadDotEnv("")
	logger := logging.NewFromEnv("report-service")

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

	tranlogRepo := database.NewTranlogRepository(db)
	terminalRepo := database.NewTerminalRepository(db)

	tranlogs := database.NewReportTranlogSource(tranlogRepo)
	cash := database.NewReportCashSource(terminalRepo)
	lookup := database.NewReportTerminalLookup(tranlogRepo, terminalRepo)
	gate := report.NewReconciliationGate(cash, lookup, database.NewDailyInfoRepository(db), logger)

	registry := report.NewRegistry()
	registry.Register("sales", report.NewSalesPlugin(tranlogs, cash, gate, cashPaymentCodes()))
	registry.Register("payment", report.NewPaymentPlugin(tranlogs, gate))
	registry.Register("item", report.NewItemPlugin(tranlogs, gate))
	registry.Register("category", report.NewCategoryPlugin(tranlogs, gate))

	base := service.NewBase("report-service", logger).WithHealthCheck(db.HealthCheck)
	metrics := middleware.NewMetrics("report-service")

	h := &handlers{
		registry:      registry,
		base:          base,
		logger:        logger,
		jwtSecret:     []byte(config.EnvOrDefault("JWT_SECRET", "dev-secret")),
		serviceSecret: []byte(config.EnvOrDefault("SERVICE_TOKEN_SECRET", "dev-service-secret")),
		journalURL:    config.EnvOrDefault("JOURNAL_SERVICE_URL", ""),
		terminalURL:   config.EnvOrDefault("TERMINAL_SERVICE_URL", "http://localhost:8001"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginRecovery(logger), ginMetrics(metrics))
	h.mount(router, metrics)

	server := &http.Server{
		Addr:         ":" + config.EnvOrDefault("PORT", "8004"),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("report service listening")
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

// cashPaymentCodes selects which payment codes feed the cash block's
// logical amount; driven by configuration since payment codes are
// tenant master data this service never loads in full.
func cashPaymentCodes() map[string]bool {
	codes := map[string]bool{}
	for _, code := range strings.Split(config.EnvOrDefault("CASH_PAYMENT_CODES", "01,cash"), ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes[code] = true
		}
	}
	return codes
}

func ginRecovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithField("panic", rec).Error("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false, "code": http.StatusInternalServerError,
					"message": "internal error", "operation": "unknown",
				})
			}
		}()
		c.Next()
	}
}

func ginMetrics(metrics *middleware.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.Observe(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
