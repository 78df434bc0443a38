package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kugelpos/transactional-core/domain/report"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/service"
)

type handlers struct {
	registry      *report.Registry
	base          *service.BaseService
	logger        *logging.Logger
	jwtSecret     []byte
	serviceSecret []byte
	journalURL    string
	terminalURL   string
	httpClient    *http.Client
}

func (h *handlers) mount(router *gin.Engine, metrics *middleware.Metrics) {
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", h.health)
	router.GET("/info", h.info)

	authed := router.Group("/", h.auth)
	authed.GET("/tenants/:tenantID/stores/:storeCode/reports", h.storeReport)
	authed.GET("/tenants/:tenantID/stores/:storeCode/terminals/:terminalNo/reports", h.terminalReport)
}

func (h *handlers) health(c *gin.Context) {
	if err := h.base.CheckHealth(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, envelope(false, http.StatusServiceUnavailable, "unhealthy", nil, "health"))
		return
	}
	c.JSON(http.StatusOK, envelope(true, http.StatusOK, "success", gin.H{"status": "ok"}, "health"))
}

func (h *handlers) info(c *gin.Context) {
	c.JSON(http.StatusOK, envelope(true, http.StatusOK, "success", h.base.Stats(c.Request.Context()), "info"))
}

func envelope(success bool, code int, message string, data any, operation string) gin.H {
	e := gin.H{"success": success, "code": code, "message": message, "operation": operation}
	if data != nil {
		e["data"] = data
	}
	return e
}

// auth accepts either a tenant-scoped bearer JWT (admin reads) or a
// per-terminal API key (terminal-initiated flash/daily reports). API-key
// callers are tagged so the report is also journalled.
func (h *handlers) auth(c *gin.Context) {
	if key := c.GetHeader("X-API-Key"); key != "" {
		terminalNo := c.Param("terminalNo")
		if terminalNo == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope(false, http.StatusUnauthorized, "API key auth requires a terminal-scoped report", nil, "auth"))
			return
		}
		terminalID := fmt.Sprintf("%s-%s-%s", c.Param("tenantID"), c.Param("storeCode"), terminalNo)
		if err := h.verifyAPIKey(c.Request.Context(), terminalID, key); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope(false, http.StatusUnauthorized, "unrecognised API key", nil, "auth"))
			return
		}
		c.Set("api_key_driven", true)
		c.Next()
		return
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope(false, http.StatusUnauthorized, "missing credentials", nil, "auth"))
		return
	}
	claims := &middleware.TenantClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	})
	if err != nil || !parsed.Valid || claims.TenantID != c.Param("tenantID") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope(false, http.StatusUnauthorized, "invalid or mismatched token", nil, "auth"))
		return
	}
	c.Next()
}

func (h *handlers) verifyAPIKey(ctx context.Context, terminalID, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.terminalURL+"/terminals/"+terminalID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", apiKey)
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("terminal service rejected key: status %d", resp.StatusCode)
	}
	return nil
}

func (h *handlers) storeReport(c *gin.Context) {
	h.generate(c, nil)
}

func (h *handlers) terminalReport(c *gin.Context) {
	no, err := strconv.Atoi(c.Param("terminalNo"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, envelope(false, http.StatusUnprocessableEntity, "malformed terminal number", nil, "report_generate"))
		return
	}
	h.generate(c, &no)
}

func (h *handlers) generate(c *gin.Context, terminalNo *int) {
	const op = "report_generate"

	scope := report.Scope{
		TenantID:     c.Param("tenantID"),
		StoreCode:    c.Param("storeCode"),
		TerminalNo:   terminalNo,
		BusinessDate: c.Query("business_date"),
		FromDate:     c.Query("from_date"),
		ToDate:       c.Query("to_date"),
		ReportScope:  c.DefaultQuery("report_scope", "flash"),
		ReportType:   c.DefaultQuery("report_type", "sales"),
		Filter:       c.Query("filter"),
	}
	if oc := c.Query("open_counter"); oc != "" {
		n, err := strconv.Atoi(oc)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, envelope(false, http.StatusUnprocessableEntity, "malformed open_counter", nil, op))
			return
		}
		scope.OpenCounter = &n
	}
	if scope.ReportScope != "flash" && scope.ReportScope != "daily" {
		c.JSON(http.StatusUnprocessableEntity, envelope(false, http.StatusUnprocessableEntity, "report_scope must be flash or daily", nil, op))
		return
	}
	if scope.BusinessDate == "" && scope.FromDate == "" {
		c.JSON(http.StatusUnprocessableEntity, envelope(false, http.StatusUnprocessableEntity, "business_date or from_date is required", nil, op))
		return
	}

	doc, err := h.registry.Generate(c.Request.Context(), scope)
	if err != nil {
		status := errors.GetHTTPStatus(err)
		message := err.Error()
		if se := errors.GetServiceError(err); se != nil {
			message = se.UserError.Message
		}
		c.JSON(status, envelope(false, status, message, nil, op))
		return
	}

	// Terminal-initiated reports are journalled with a service token.
	if c.GetBool("api_key_driven") {
		go h.postJournal(doc)
	}

	c.JSON(http.StatusOK, envelope(true, http.StatusOK, "success", doc, op))
}

// postJournal posts the generated report to the journal service,
// fire-and-forget — a journal outage never fails the report response.
func (h *handlers) postJournal(doc report.ReportDocument) {
	if h.journalURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transactionType := "FlashReport"
	if doc.ReportScope == "daily" {
		transactionType = "DailyReport"
	}
	body, err := json.Marshal(map[string]any{
		"transaction_type": transactionType,
		"report":           doc,
	})
	if err != nil {
		return
	}

	token, err := middleware.MintServiceToken(h.serviceSecret, "report-service", 2*time.Minute)
	if err != nil {
		h.logger.WithError(err).Warn("mint journal token")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/tenants/%s/journals", h.journalURL, doc.TenantID), bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.WithError(err).Warn("journal post failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		h.logger.WithField("status", resp.StatusCode).Warn("journal post rejected")
	}
}
