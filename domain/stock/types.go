// Package stock implements the Stock Service consumer: an
// at-least-once tranlog event handler that applies signed quantity deltas
// to per-item inventory, deduplicated by event_id, plus scheduled
// per-tenant snapshots.
package stock

import (
	"time"

	"github.com/kugelpos/transactional-core/domain/cart"
)

// UpdateType classifies one StockUpdate row by the transaction_type that
// produced it.
type UpdateType string

const (
	UpdateSale       UpdateType = "sale"
	UpdateReturn     UpdateType = "return"
	UpdateVoidReturn UpdateType = "void_return"
	UpdateVoidSale   UpdateType = "void_sale"
	UpdateManualIn   UpdateType = "manual_in"
	UpdateManualOut  UpdateType = "manual_out"
	UpdateAdjustment UpdateType = "adjustment"
	UpdatePurchase   UpdateType = "purchase"
)

// Stock is the per-item inventory row.
type Stock struct {
	TenantID         string    `json:"tenant_id"`
	StoreCode        string    `json:"store_code"`
	ItemCode         string    `json:"item_code"`
	CurrentQuantity  float64   `json:"current_quantity"`
	MinimumQuantity  *float64  `json:"minimum_quantity,omitempty"`
	ReorderPoint     *float64  `json:"reorder_point,omitempty"`
	ReorderQuantity  *float64  `json:"reorder_quantity,omitempty"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}

// StockUpdate is the append-only ledger row recorded alongside every
// Stock mutation.
type StockUpdate struct {
	EventID          string     `json:"event_id"`
	TenantID         string     `json:"tenant_id"`
	StoreCode        string     `json:"store_code"`
	ItemCode         string     `json:"item_code"`
	PreviousQuantity float64    `json:"previous_quantity"`
	QuantityChange   float64    `json:"quantity_change"`
	NewQuantity      float64    `json:"new_quantity"`
	UpdateType       UpdateType `json:"update_type"`
	ReferenceID      string     `json:"reference_id,omitempty"`
	OperatorID       string     `json:"operator_id,omitempty"`
	Note             string     `json:"note,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// SnapshotItem is one row of a StockSnapshot's item list.
type SnapshotItem struct {
	ItemCode string  `json:"item_code"`
	Quantity float64 `json:"quantity"`
}

// StockSnapshot is a point-in-time copy of a tenant's entire Stock
// collection, taken manually or on a cron schedule.
type StockSnapshot struct {
	SnapshotID       string         `json:"snapshot_id"`
	TenantID         string         `json:"tenant_id"`
	GenerateDateTime time.Time      `json:"generate_date_time"`
	CreatedBy        string         `json:"created_by"`
	Items            []SnapshotItem `json:"items"`
}

// Alert is the fire-and-forget notification emitted when a post-apply
// quantity crosses a threshold. Delivery transport
// (WebSocket, pub/sub) is explicitly out of scope; this
// core only constructs and publishes the envelope.
type Alert struct {
	TenantID        string    `json:"tenant_id"`
	StoreCode       string    `json:"store_code"`
	ItemCode        string    `json:"item_code"`
	AlertType       string    `json:"alert_type"` // "minimum_stock" | "reorder_point"
	CurrentQuantity float64   `json:"current_quantity"`
	Threshold       float64   `json:"threshold"`
	Timestamp       time.Time `json:"timestamp"`
}

// updateTypeFor derives the StockUpdate.UpdateType from a tranlog
// transaction_type.
func updateTypeFor(transactionType cart.TransactionType) UpdateType {
	switch transactionType {
	case cart.TransactionNormalSales:
		return UpdateSale
	case cart.TransactionReturnSales:
		return UpdateReturn
	case cart.TransactionVoidReturn:
		return UpdateVoidReturn
	case cart.TransactionVoidSales:
		return UpdateVoidSale
	default:
		return UpdateAdjustment
	}
}
