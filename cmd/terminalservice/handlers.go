package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/terminal"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/httputil"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/service"
)

type handlers struct {
	svc           *terminal.Service
	tracker       *delivery.Tracker
	base          *service.BaseService
	logger        *logging.Logger
	jwtSecret     []byte
	serviceSecret []byte
}

func (h *handlers) mount(router *mux.Router, metrics *middleware.Metrics) {
	router.Use(metrics.Middleware(routeTemplate))

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/info", h.info).Methods(http.MethodGet)

	// Tenant-scoped admin operations (bearer JWT).
	admin := router.NewRoute().Subrouter()
	admin.Use(h.bearerAuth)
	admin.HandleFunc("/terminals", h.createTerminal).Methods(http.MethodPost)
	admin.HandleFunc("/terminals/{id}", h.deleteTerminal).Methods(http.MethodDelete)
	admin.HandleFunc("/terminals/{id}/description", h.updateDescription).Methods(http.MethodPatch)
	admin.HandleFunc("/terminals/{id}/function_mode", h.updateFunctionMode).Methods(http.MethodPatch)

	// Terminal-initiated operations (X-API-Key). GET additionally
	// accepts a service token so the cart side's terminal-info lookups work.
	device := router.NewRoute().Subrouter()
	device.Use(h.apiKeyAuth)
	device.HandleFunc("/terminals/{id}", h.getTerminal).Methods(http.MethodGet)
	device.HandleFunc("/terminals/{id}/sign-in", h.signIn).Methods(http.MethodPost)
	device.HandleFunc("/terminals/{id}/sign-out", h.signOut).Methods(http.MethodPost)
	device.HandleFunc("/terminals/{id}/open", h.open).Methods(http.MethodPost)
	device.HandleFunc("/terminals/{id}/close", h.close).Methods(http.MethodPost)
	device.HandleFunc("/terminals/{id}/cash-in", h.cashIn).Methods(http.MethodPost)
	device.HandleFunc("/terminals/{id}/cash-out", h.cashOut).Methods(http.MethodPost)

	// Consumer ACK sink (service-to-service token).
	s2s := router.NewRoute().Subrouter()
	s2s.Use(h.serviceAuth)
	s2s.HandleFunc("/terminals/{id}/delivery-status", h.deliveryStatus).Methods(http.MethodPost)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.base.CheckHealth(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "health", "unhealthy")
		return
	}
	httputil.WriteEnvelope(w, "health", map[string]string{"status": "ok"}, nil)
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	httputil.WriteEnvelope(w, "info", h.base.Stats(r.Context()), nil)
}

// bearerAuth guards tenant-scoped admin routes.
func (h *handlers) bearerAuth(next http.Handler) http.Handler {
	return middleware.BearerAuth(h.jwtSecret)(next)
}

// apiKeyAuth resolves X-API-Key to the owning terminal and verifies it
// matches the terminal addressed in the path. A valid service token is
// accepted instead for inter-service terminal-info reads.
func (h *handlers) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key != "" {
			t, err := h.svc.GetByAPIKey(r.Context(), key)
			if err != nil {
				httputil.Unauthorized(w, "auth", "unrecognised API key")
				return
			}
			if t.ID() != mux.Vars(r)["id"] {
				httputil.Unauthorized(w, "auth", "API key does not match terminal")
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			token := strings.TrimPrefix(auth, "Bearer ")
			if middleware.VerifyServiceToken(h.serviceSecret, token) == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		httputil.Unauthorized(w, "auth", "missing X-API-Key header")
	})
}

func (h *handlers) serviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || middleware.VerifyServiceToken(h.serviceSecret, token) != nil {
			httputil.Unauthorized(w, "auth", "invalid service token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// terminalKey extracts the (tenant, store, no) triple from the derived
// "{tenant}-{store}-{no}" path id.
func terminalKey(r *http.Request) (tenantID, storeCode string, terminalNo int, err error) {
	id := mux.Vars(r)["id"]
	first := strings.Index(id, "-")
	last := strings.LastIndex(id, "-")
	if first < 0 || last <= first {
		return "", "", 0, errors.Validation("malformed terminal id: " + id)
	}
	no, convErr := strconv.Atoi(id[last+1:])
	if convErr != nil {
		return "", "", 0, errors.Validation("malformed terminal id: " + id)
	}
	return id[:first], id[first+1 : last], no, nil
}

func (h *handlers) createTerminal(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_create"
	var req struct {
		StoreCode   string `json:"store_code"`
		TerminalNo  int    `json:"terminal_no"`
		Description string `json:"description"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	if req.StoreCode == "" || req.TerminalNo <= 0 {
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("store_code and terminal_no are required"))
		return
	}

	apiKey, err := terminal.GenerateAPIKey()
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, errors.System("generate api key", err))
		return
	}
	t, err := h.svc.Create(r.Context(), middleware.TenantID(r), req.StoreCode, req.TerminalNo, req.Description, apiKey)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}

	// The plaintext key is returned exactly once, here; only its digest
	// is stored.
	httputil.WriteEnvelopeStatus(w, http.StatusCreated, op, map[string]any{
		"terminal": t,
		"api_key":  apiKey,
	}, nil)
}

func (h *handlers) getTerminal(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_get"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	t, err := h.svc.Get(r.Context(), tenantID, storeCode, terminalNo)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, t, nil)
}

func (h *handlers) deleteTerminal(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_delete"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	if err := h.svc.Delete(r.Context(), tenantID, storeCode, terminalNo); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, nil, nil)
}

func (h *handlers) updateDescription(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_update_description"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	t, err := h.svc.UpdateDescription(r.Context(), tenantID, storeCode, terminalNo, req.Description)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, t, nil)
}

func (h *handlers) updateFunctionMode(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_update_function_mode"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		FunctionMode string `json:"function_mode"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	t, err := h.svc.UpdateFunctionMode(r.Context(), tenantID, storeCode, terminalNo, terminal.FunctionMode(req.FunctionMode))
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, t, nil)
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_sign_in"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		StaffID   string `json:"staff_id"`
		StaffName string `json:"staff_name"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	if req.StaffID == "" {
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("staff_id is required"))
		return
	}
	t, err := h.svc.SignIn(r.Context(), tenantID, storeCode, terminalNo, master.Staff{ID: req.StaffID, Name: req.StaffName})
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, t, nil)
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_sign_out"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	t, err := h.svc.SignOut(r.Context(), tenantID, storeCode, terminalNo)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, t, nil)
}

func (h *handlers) open(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_open"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		InitialAmount int64 `json:"initial_amount"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	t, err := h.svc.Open(r.Context(), tenantID, storeCode, terminalNo, req.InitialAmount)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, t, nil)
}

func (h *handlers) close(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_close"
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		PhysicalAmount int64 `json:"physical_amount"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	closeLog, err := h.svc.Close(r.Context(), tenantID, storeCode, terminalNo, req.PhysicalAmount)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, closeLog, nil)
}

func (h *handlers) cashIn(w http.ResponseWriter, r *http.Request) {
	h.cashInOut(w, r, "terminal_cash_in", 1)
}

func (h *handlers) cashOut(w http.ResponseWriter, r *http.Request) {
	h.cashInOut(w, r, "terminal_cash_out", -1)
}

// cashInOut records a signed movement: the endpoint fixes the sign, the
// body supplies the magnitude.
func (h *handlers) cashInOut(w http.ResponseWriter, r *http.Request, op string, sign int64) {
	tenantID, storeCode, terminalNo, err := terminalKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	if req.Amount <= 0 {
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("amount must be positive; the endpoint determines direction"))
		return
	}
	log, err := h.svc.CashInOut(r.Context(), tenantID, storeCode, terminalNo, sign*req.Amount, req.Description)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, log, nil)
}

func (h *handlers) deliveryStatus(w http.ResponseWriter, r *http.Request) {
	const op = "terminal_delivery_status"
	var req struct {
		EventID string `json:"event_id"`
		Service string `json:"service"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	if req.EventID == "" || req.Service == "" {
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("event_id and service are required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.tracker.Ack(ctx, req.EventID, req.Service, delivery.ServiceStatus(req.Status), req.Message); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, nil, nil)
}
