package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/tranlog"
	"github.com/kugelpos/transactional-core/infrastructure/database"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/httputil"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/service"
)

type handlers struct {
	carts         *cart.Service
	cartRepo      cart.Repository
	finaliser     *tranlog.Finaliser
	tranlogs      *database.TranlogRepository
	statuses      *database.TranlogStatusRepository
	tracker       *delivery.Tracker
	keyVerifier   *apiKeyVerifier
	base          *service.BaseService
	logger        *logging.Logger
	jwtSecret     []byte
	serviceSecret []byte
}

func (h *handlers) mount(router chi.Router, metrics *middleware.Metrics) {
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Get("/health", h.health)
	router.Get("/info", h.info)

	// Terminal-initiated cart operations: X-API-Key plus a
	// terminal_id query parameter naming the driving terminal.
	router.Group(func(r chi.Router) {
		r.Use(h.terminalAuth)
		r.Post("/carts", h.createCart)
		r.Get("/carts/{cartID}", h.getCart)
		r.Post("/carts/{cartID}/cancel", h.cancelCart)
		r.Post("/carts/{cartID}/lineItems", h.addItem)
		r.Post("/carts/{cartID}/subtotal", h.subtotal)
		r.Post("/carts/{cartID}/discounts", h.addCartDiscount)
		r.Post("/carts/{cartID}/payments", h.addPayments)
		r.Post("/carts/{cartID}/bill", h.bill)
		r.Post("/carts/{cartID}/resume-item-entry", h.resumeItemEntry)
		r.Post("/carts/{cartID}/lineItems/{lineNo}/cancel", h.cancelLineItem)
		r.Post("/carts/{cartID}/lineItems/{lineNo}/discounts", h.addLineDiscount)
		r.Patch("/carts/{cartID}/lineItems/{lineNo}/unitPrice", h.updateUnitPrice)
		r.Patch("/carts/{cartID}/lineItems/{lineNo}/quantity", h.updateQuantity)
	})

	// Tenant-scoped transaction reads and reversals (bearer JWT).
	router.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(h.jwtSecret))
		r.Use(h.tenantPathGuard)
		r.Get("/tenants/{tenantID}/stores/{storeCode}/terminals/{terminalNo}/transactions", h.listTransactions)
		r.Get("/tenants/{tenantID}/stores/{storeCode}/terminals/{terminalNo}/transactions/{transactionNo}", h.getTransaction)
		r.Post("/tenants/{tenantID}/stores/{storeCode}/terminals/{terminalNo}/transactions/{transactionNo}/void", h.voidTransaction)
		r.Post("/tenants/{tenantID}/stores/{storeCode}/terminals/{terminalNo}/transactions/{transactionNo}/return", h.returnTransaction)
	})

	// Consumer ACK sink (service token).
	router.Group(func(r chi.Router) {
		r.Use(h.serviceAuth)
		r.Post("/tenants/{tenantID}/stores/{storeCode}/terminals/{terminalNo}/transactions/{transactionNo}/delivery-status", h.deliveryStatus)
	})
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

// terminalCtx identifies the terminal driving the request, resolved by
// terminalAuth from the terminal_id query parameter.
type terminalCtx struct {
	TenantID   string
	StoreCode  string
	TerminalNo int
}

type terminalCtxKey struct{}

func requestTerminal(r *http.Request) (terminalCtx, bool) {
	tc, ok := r.Context().Value(terminalCtxKey{}).(terminalCtx)
	return tc, ok
}

// terminalAuth requires terminal_id + X-API-Key and verifies the pair
// against the terminal service (which rejects a key that does not belong
// to the addressed terminal). Verification rides the terminal-info TTL
// cache's staleness posture: the cart FSM re-checks terminal status on the
// operations that care.
func (h *handlers) terminalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		terminalID := r.URL.Query().Get("terminal_id")
		apiKey := r.Header.Get("X-API-Key")
		if terminalID == "" || apiKey == "" {
			httputil.Unauthorized(w, "auth", "terminal_id and X-API-Key are required")
			return
		}
		tenantID, storeCode, terminalNo, err := parseTerminalID(terminalID)
		if err != nil {
			httputil.WriteErrorEnvelope(w, r, "auth", err)
			return
		}
		if err := h.keyVerifier.Verify(r.Context(), terminalID, apiKey); err != nil {
			httputil.Unauthorized(w, "auth", "unrecognised API key")
			return
		}
		ctx := context.WithValue(r.Context(), terminalCtxKey{}, terminalCtx{
			TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseTerminalID(id string) (tenantID, storeCode string, terminalNo int, err error) {
	first := strings.Index(id, "-")
	last := strings.LastIndex(id, "-")
	if first < 0 || last <= first {
		return "", "", 0, errors.Validation("malformed terminal_id: " + id)
	}
	no, convErr := strconv.Atoi(id[last+1:])
	if convErr != nil {
		return "", "", 0, errors.Validation("malformed terminal_id: " + id)
	}
	return id[:first], id[first+1 : last], no, nil
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

// tenantPathGuard rejects a bearer token whose tenant claim does not match
// the tenant addressed in the path; the claim is authoritative.
func (h *handlers) tenantPathGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "tenantID") != middleware.TenantID(r) {
			httputil.Unauthorized(w, "auth", "token tenant does not match path tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handlers) createCart(w http.ResponseWriter, r *http.Request) {
	const op = "cart_create"
	tc, _ := requestTerminal(r)
	var req struct {
		TransactionType string `json:"transaction_type"`
	}
	if !httputil.DecodeJSONOptional(w, r, op, &req) {
		return
	}
	c, err := h.carts.Create(r.Context(), tc.TenantID, tc.StoreCode, tc.TerminalNo, cart.TransactionType(req.TransactionType))
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelopeStatus(w, http.StatusCreated, op, map[string]any{"cart_id": c.CartID, "cart": c}, nil)
}

// cartCall runs one cart mutation and writes the resulting cart.
func (h *handlers) cartCall(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error)) {
	tc, _ := requestTerminal(r)
	c, err := fn(r.Context(), tc.TenantID, chi.URLParam(r, "cartID"))
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, c, nil)
}

func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	h.cartCall(w, r, "cart_get", h.carts.Get)
}

func (h *handlers) cancelCart(w http.ResponseWriter, r *http.Request) {
	h.cartCall(w, r, "cart_cancel", h.carts.Cancel)
}

func (h *handlers) subtotal(w http.ResponseWriter, r *http.Request) {
	h.cartCall(w, r, "cart_subtotal", h.carts.Subtotal)
}

func (h *handlers) resumeItemEntry(w http.ResponseWriter, r *http.Request) {
	h.cartCall(w, r, "cart_resume_item_entry", h.carts.ResumeItemEntry)
}

func (h *handlers) addItem(w http.ResponseWriter, r *http.Request) {
	const op = "cart_add_item"
	var req struct {
		ItemCode  string   `json:"item_code"`
		Quantity  float64  `json:"quantity"`
		UnitPrice *int64   `json:"unit_price"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.AddItem(ctx, tenantID, cartID, cart.ItemInput{
			ItemCode:          req.ItemCode,
			Quantity:          req.Quantity,
			UnitPriceOverride: req.UnitPrice,
		})
	})
}

type discountRequest struct {
	DiscountType   string  `json:"discount_type"`
	DiscountValue  float64 `json:"discount_value"`
	DiscountDetail string  `json:"discount_detail"`
	DiscountReason string  `json:"discount_reason"`
}

func (d discountRequest) toDomain() cart.Discount {
	return cart.Discount{
		DiscountType:   cart.DiscountType(d.DiscountType),
		DiscountValue:  d.DiscountValue,
		DiscountDetail: d.DiscountDetail,
		DiscountReason: d.DiscountReason,
	}
}

func (h *handlers) addCartDiscount(w http.ResponseWriter, r *http.Request) {
	const op = "cart_add_discount"
	var req discountRequest
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.AddCartDiscount(ctx, tenantID, cartID, req.toDomain())
	})
}

func lineNo(r *http.Request) (int, error) {
	no, err := strconv.Atoi(chi.URLParam(r, "lineNo"))
	if err != nil || no < 1 {
		return 0, errors.Validation("malformed line number")
	}
	return no, nil
}

func (h *handlers) cancelLineItem(w http.ResponseWriter, r *http.Request) {
	const op = "cart_cancel_line_item"
	no, err := lineNo(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.CancelLineItem(ctx, tenantID, cartID, no)
	})
}

func (h *handlers) addLineDiscount(w http.ResponseWriter, r *http.Request) {
	const op = "cart_add_line_discount"
	no, err := lineNo(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req discountRequest
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.AddLineDiscount(ctx, tenantID, cartID, no, req.toDomain())
	})
}

func (h *handlers) updateUnitPrice(w http.ResponseWriter, r *http.Request) {
	const op = "cart_update_unit_price"
	no, err := lineNo(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		UnitPrice int64 `json:"unit_price"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.UpdatePrice(ctx, tenantID, cartID, no, req.UnitPrice)
	})
}

func (h *handlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	const op = "cart_update_quantity"
	no, err := lineNo(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req struct {
		Quantity float64 `json:"quantity"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.UpdateQuantity(ctx, tenantID, cartID, no, req.Quantity)
	})
}

type paymentRequest struct {
	PaymentCode   string `json:"payment_code"`
	Amount        int64  `json:"amount"`
	DepositAmount *int64 `json:"deposit_amount"`
	Detail        string `json:"detail"`
}

func (h *handlers) addPayments(w http.ResponseWriter, r *http.Request) {
	const op = "cart_add_payments"
	var req struct {
		Payments []paymentRequest `json:"payments"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	if len(req.Payments) == 0 {
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("at least one payment is required"))
		return
	}
	requests := make([]cart.PaymentRequest, 0, len(req.Payments))
	for _, p := range req.Payments {
		requests = append(requests, cart.PaymentRequest{
			PaymentCode:   p.PaymentCode,
			Amount:        p.Amount,
			DepositAmount: p.DepositAmount,
			Detail:        p.Detail,
		})
	}
	h.cartCall(w, r, op, func(ctx context.Context, tenantID, cartID string) (*cart.Cart, error) {
		return h.carts.AddPayment(ctx, tenantID, cartID, requests)
	})
}

// bill finalises the cart: FSM check, number allocation, tranlog write,
// delivery-status row, publish, then the terminal Completed state.
func (h *handlers) bill(w http.ResponseWriter, r *http.Request) {
	const op = "cart_bill"
	tc, _ := requestTerminal(r)
	cartID := chi.URLParam(r, "cartID")

	c, err := h.carts.Get(r.Context(), tc.TenantID, cartID)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	if err := cart.CheckEventSequence(c.Status, cart.EventBill); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}

	t, err := h.finaliser.Bill(r.Context(), c)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}

	c.Status = cart.NextStatus(c.Status, cart.EventBill)
	if err := h.cartRepo.Save(r.Context(), c); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Warn("billed cart state not persisted; tranlog already committed")
	}

	httputil.WriteEnvelope(w, op, map[string]any{"cart": c, "transaction": t}, nil)
}

func transactionKey(r *http.Request) (tenantID, storeCode string, terminalNo int, transactionNo int64, err error) {
	tenantID = chi.URLParam(r, "tenantID")
	storeCode = chi.URLParam(r, "storeCode")
	terminalNo, convErr := strconv.Atoi(chi.URLParam(r, "terminalNo"))
	if convErr != nil {
		return "", "", 0, 0, errors.Validation("malformed terminal number")
	}
	if no := chi.URLParam(r, "transactionNo"); no != "" {
		transactionNo, convErr = strconv.ParseInt(no, 10, 64)
		if convErr != nil {
			return "", "", 0, 0, errors.Validation("malformed transaction number")
		}
	}
	return tenantID, storeCode, terminalNo, transactionNo, nil
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	const op = "transactions_list"
	tenantID, storeCode, terminalNo, _, err := transactionKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}

	filter := tranlog.ListFilter{
		TenantID:     tenantID,
		StoreCode:    storeCode,
		TerminalNo:   &terminalNo,
		BusinessDate: httputil.QueryString(r, "business_date", ""),
		FromDate:     httputil.QueryString(r, "from_date", ""),
		ToDate:       httputil.QueryString(r, "to_date", ""),
	}
	if oc := httputil.QueryInt(r, "open_counter", -1); oc >= 0 {
		filter.OpenCounter = &oc
	}

	logs, err := h.tranlogs.List(r.Context(), filter)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}

	offset, limit := httputil.PaginationParams(r, 50, 500)
	total := len(logs)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	httputil.WriteEnvelope(w, op, logs[offset:end], httputil.PageMetadata{Offset: offset, Limit: limit, Total: total})
}

func (h *handlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	const op = "transactions_get"
	tenantID, storeCode, terminalNo, transactionNo, err := transactionKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	t, err := h.tranlogs.Get(r.Context(), tenantID, storeCode, terminalNo, transactionNo)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	status, err := tranlog.GetOrDefault(r.Context(), h.statuses, tenantID, storeCode, terminalNo, transactionNo)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, map[string]any{"transaction": t, "status": status}, nil)
}

type reversalRequest struct {
	Payments  []paymentRequest `json:"payments"`
	StaffID   string           `json:"staff_id"`
	StaffName string           `json:"staff_name"`
}

func (req reversalRequest) domainPayments() []cart.Payment {
	payments := make([]cart.Payment, 0, len(req.Payments))
	for i, p := range req.Payments {
		payments = append(payments, cart.Payment{
			PaymentNo:     i + 1,
			PaymentCode:   p.PaymentCode,
			Amount:        p.Amount,
			DepositAmount: p.DepositAmount,
			Detail:        p.Detail,
		})
	}
	return payments
}

func (h *handlers) voidTransaction(w http.ResponseWriter, r *http.Request) {
	h.reversal(w, r, "transactions_void", h.finaliser.Void)
}

func (h *handlers) returnTransaction(w http.ResponseWriter, r *http.Request) {
	h.reversal(w, r, "transactions_return", h.finaliser.Return)
}

func (h *handlers) reversal(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, original *tranlog.TransactionLog, staff master.Staff, payments []cart.Payment) (*tranlog.TransactionLog, error)) {
	tenantID, storeCode, terminalNo, transactionNo, err := transactionKey(r)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	var req reversalRequest
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}

	original, err := h.tranlogs.Get(r.Context(), tenantID, storeCode, terminalNo, transactionNo)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	result, err := fn(r.Context(), original, master.Staff{ID: req.StaffID, Name: req.StaffName}, req.domainPayments())
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, result, nil)
}

func (h *handlers) deliveryStatus(w http.ResponseWriter, r *http.Request) {
	const op = "transactions_delivery_status"
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
	if err := h.tracker.Ack(r.Context(), req.EventID, req.Service, delivery.ServiceStatus(req.Status), req.Message); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, nil, nil)
}
