package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/stock"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/database"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/httputil"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/service"
)

type handlers struct {
	consumer      *stock.Consumer
	repo          *database.StockRepository
	scheduler     *stock.SnapshotScheduler
	base          *service.BaseService
	logger        *logging.Logger
	jwtSecret     []byte
	serviceSecret []byte
	cartURL       string
	httpClient    *http.Client
}

func (h *handlers) mount(router *mux.Router, metrics *middleware.Metrics) {
	router.Use(metrics.Middleware(routeTemplate))

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/info", h.info).Methods(http.MethodGet)

	// Pub/sub ingress. The
	// broker pushes here; dedup by event_id makes redelivery safe.
	router.HandleFunc("/tranlog", h.consumeTranlog).Methods(http.MethodPost)

	admin := router.NewRoute().Subrouter()
	admin.Use(middleware.BearerAuth(h.jwtSecret))
	admin.HandleFunc("/tenants/{tenantID}/stores/{storeCode}/stock", h.listStock).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenantID}/stores/{storeCode}/stock/{itemCode}", h.getStock).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenantID}/stores/{storeCode}/stock/{itemCode}/thresholds", h.setThresholds).Methods(http.MethodPut)
	admin.HandleFunc("/tenants/{tenantID}/stores/{storeCode}/stock/{itemCode}/adjust", h.adjust).Methods(http.MethodPost)
	admin.HandleFunc("/tenants/{tenantID}/snapshots", h.takeSnapshot).Methods(http.MethodPost)
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

// tranlogPayload is the subset of the published tranlog document the
// consumer needs, plus the identity fields the ACK callback
// addresses the producer with.
type tranlogPayload struct {
	TenantID        string `json:"tenant_id"`
	StoreCode       string `json:"store_code"`
	TerminalNo      int    `json:"terminal_no"`
	TransactionNo   int64  `json:"transaction_no"`
	TransactionType string `json:"transaction_type"`
	LineItems       []struct {
		ItemCode    string  `json:"item_code"`
		Quantity    float64 `json:"quantity"`
		IsCancelled bool    `json:"is_cancelled"`
	} `json:"line_items"`
}

func (h *handlers) consumeTranlog(w http.ResponseWriter, r *http.Request) {
	const op = "stock_consume_tranlog"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, op, "message too large")
		return
	}

	var payload tranlogPayload
	eventID, _, err := events.ParseEnvelope(body, &payload)
	if err != nil {
		httputil.WriteError(w, http.StatusUnprocessableEntity, op, err.Error())
		return
	}

	event := stock.TranlogEvent{
		EventID:         eventID,
		TenantID:        payload.TenantID,
		StoreCode:       payload.StoreCode,
		TransactionType: cart.TransactionType(payload.TransactionType),
	}
	for _, li := range payload.LineItems {
		event.LineItems = append(event.LineItems, stock.TranlogLineItem{
			ItemCode: li.ItemCode, Quantity: li.Quantity, IsCancelled: li.IsCancelled,
		})
	}

	applyErr := h.consumer.Apply(r.Context(), event)

	// ACK the producer either way: received on success,
	// failed with a message otherwise, so the delivery tracker can drive
	// its republish decisions off the truth.
	go h.ackProducer(payload, eventID, applyErr)

	if applyErr != nil {
		httputil.WriteErrorEnvelope(w, r, op, applyErr)
		return
	}
	httputil.WriteEnvelope(w, op, map[string]string{"event_id": eventID}, nil)
}

func (h *handlers) ackProducer(payload tranlogPayload, eventID string, applyErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := "received"
	message := ""
	if applyErr != nil {
		status = "failed"
		message = applyErr.Error()
	}
	body, err := json.Marshal(map[string]string{
		"event_id": eventID,
		"service":  "stock",
		"status":   status,
		"message":  message,
	})
	if err != nil {
		return
	}

	token, err := middleware.MintServiceToken(h.serviceSecret, "stock-service", 2*time.Minute)
	if err != nil {
		h.logger.WithError(err).Warn("mint ack token")
		return
	}
	url := fmt.Sprintf("%s/tenants/%s/stores/%s/terminals/%d/transactions/%d/delivery-status",
		h.cartURL, payload.TenantID, payload.StoreCode, payload.TerminalNo, payload.TransactionNo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.WithError(err).WithField("event_id", eventID).Warn("delivery ack failed; republish sweep will retry the event")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		h.logger.WithField("status", resp.StatusCode).WithField("event_id", eventID).Warn("delivery ack rejected")
	}
}

func stockKey(r *http.Request) (tenantID, storeCode, itemCode string) {
	vars := mux.Vars(r)
	return vars["tenantID"], vars["storeCode"], vars["itemCode"]
}

func (h *handlers) listStock(w http.ResponseWriter, r *http.Request) {
	const op = "stock_list"
	tenantID, storeCode, _ := stockKey(r)
	rows, err := h.repo.ListByStore(r.Context(), tenantID, storeCode)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, rows, httputil.PageMetadata{Total: len(rows), Limit: len(rows)})
}

func (h *handlers) getStock(w http.ResponseWriter, r *http.Request) {
	const op = "stock_get"
	tenantID, storeCode, itemCode := stockKey(r)
	s, err := h.repo.Get(r.Context(), tenantID, storeCode, itemCode)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	if s == nil {
		httputil.WriteErrorEnvelope(w, r, op, errors.NotFound("stock", itemCode))
		return
	}
	httputil.WriteEnvelope(w, op, s, nil)
}

func (h *handlers) setThresholds(w http.ResponseWriter, r *http.Request) {
	const op = "stock_set_thresholds"
	tenantID, storeCode, itemCode := stockKey(r)
	var req struct {
		MinimumQuantity *float64 `json:"minimum_quantity"`
		ReorderPoint    *float64 `json:"reorder_point"`
		ReorderQuantity *float64 `json:"reorder_quantity"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}

	s, err := h.repo.Get(r.Context(), tenantID, storeCode, itemCode)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	if s == nil {
		s = &stock.Stock{TenantID: tenantID, StoreCode: storeCode, ItemCode: itemCode}
	}
	s.MinimumQuantity = req.MinimumQuantity
	s.ReorderPoint = req.ReorderPoint
	s.ReorderQuantity = req.ReorderQuantity
	s.LastUpdateTime = time.Now().UTC()
	if err := h.repo.Upsert(r.Context(), s); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, s, nil)
}

// adjust applies a manual stock movement (manual_in / manual_out /
// adjustment / purchase), recorded on the same append-only ledger
// the consumer writes.
func (h *handlers) adjust(w http.ResponseWriter, r *http.Request) {
	const op = "stock_adjust"
	tenantID, storeCode, itemCode := stockKey(r)
	var req struct {
		QuantityChange float64 `json:"quantity_change"`
		UpdateType     string  `json:"update_type"`
		Note           string  `json:"note"`
	}
	if !httputil.DecodeJSON(w, r, op, &req) {
		return
	}
	updateType := stock.UpdateType(req.UpdateType)
	switch updateType {
	case stock.UpdateManualIn, stock.UpdateManualOut, stock.UpdateAdjustment, stock.UpdatePurchase:
	default:
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("update_type must be manual_in, manual_out, adjustment or purchase"))
		return
	}
	if req.QuantityChange == 0 {
		httputil.WriteErrorEnvelope(w, r, op, errors.Validation("quantity_change cannot be zero"))
		return
	}

	s, err := h.repo.Get(r.Context(), tenantID, storeCode, itemCode)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	if s == nil {
		s = &stock.Stock{TenantID: tenantID, StoreCode: storeCode, ItemCode: itemCode}
	}
	previous := s.CurrentQuantity
	s.CurrentQuantity += req.QuantityChange
	s.LastUpdateTime = time.Now().UTC()
	if err := h.repo.Upsert(r.Context(), s); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	if err := h.repo.AppendUpdate(r.Context(), &stock.StockUpdate{
		EventID:          fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		TenantID:         tenantID,
		StoreCode:        storeCode,
		ItemCode:         itemCode,
		PreviousQuantity: previous,
		QuantityChange:   req.QuantityChange,
		NewQuantity:      s.CurrentQuantity,
		UpdateType:       updateType,
		OperatorID:       httputil.UserID(r),
		Note:             strings.TrimSpace(req.Note),
		Timestamp:        s.LastUpdateTime,
	}); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelope(w, op, s, nil)
}

func (h *handlers) takeSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "stock_take_snapshot"
	tenantID := mux.Vars(r)["tenantID"]
	if err := h.scheduler.TakeSnapshot(r.Context(), tenantID, httputil.UserID(r)); err != nil {
		httputil.WriteErrorEnvelope(w, r, op, err)
		return
	}
	httputil.WriteEnvelopeStatus(w, http.StatusCreated, op, map[string]string{"tenant_id": tenantID}, nil)
}
