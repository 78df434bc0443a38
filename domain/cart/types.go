// Package cart implements the cart state machine and pricing engine
//: the per-cart FSM that enforces event ordering, and the
// deterministic tax/discount/payment math that mutates cart totals.
package cart

import (
	"time"

	"github.com/kugelpos/transactional-core/domain/master"
)

// Status is one of the cart FSM's states.
type Status string

const (
	StatusInitial       Status = "Initial"
	StatusIdle          Status = "Idle"
	StatusEnteringItem  Status = "EnteringItem"
	StatusPaying        Status = "Paying"
	StatusCompleted     Status = "Completed"
	StatusCancelled     Status = "Cancelled"
)

// DiscountType distinguishes a flat-amount discount from a percentage one.
type DiscountType string

const (
	DiscountAmount     DiscountType = "DiscountAmount"
	DiscountPercentage DiscountType = "DiscountPercentage"
)

// Discount is one line- or cart-level discount entry.
type Discount struct {
	DiscountType   DiscountType `json:"discount_type"`
	DiscountValue  float64      `json:"discount_value"`
	DiscountAmount int64        `json:"discount_amount"`
	DiscountDetail string       `json:"discount_detail,omitempty"`
	DiscountReason string       `json:"discount_reason,omitempty"`
}

// LineItem is one line of the cart.
type LineItem struct {
	LineNo               int        `json:"line_no"`
	ItemCode             string     `json:"item_code"`
	CategoryCode         string     `json:"category_code"`
	Description          string     `json:"description"`
	UnitPrice            int64      `json:"unit_price"`
	UnitPriceOriginal    *int64     `json:"unit_price_original,omitempty"`
	IsUnitPriceChanged   bool       `json:"is_unit_price_changed"`
	Quantity             float64    `json:"quantity"`
	TaxCode              string     `json:"tax_code"`
	IsCancelled          bool       `json:"is_cancelled"`
	IsDiscountRestricted bool       `json:"is_discount_restricted"`
	Discounts            []Discount `json:"discounts,omitempty"`
	DiscountsAllocated   []Discount `json:"discounts_allocated,omitempty"`

	// Computed by the pricing engine, not set directly by callers.
	GrossAmount  int64 `json:"gross_amount"`
	NetAmount    int64 `json:"net_amount"`
}

// Payment is one payment row applied against the cart balance.
type Payment struct {
	PaymentNo     int    `json:"payment_no"`
	PaymentCode   string `json:"payment_code"`
	Description   string `json:"description"`
	Amount        int64  `json:"amount"`
	DepositAmount *int64 `json:"deposit_amount,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Tax is one tax-code bucket computed by the pricing engine.
type Tax struct {
	TaxNo         int          `json:"tax_no"`
	TaxCode       string       `json:"tax_code"`
	TaxType       master.TaxType `json:"tax_type"`
	TaxName       string       `json:"tax_name"`
	TaxAmount     int64        `json:"tax_amount"`
	TargetAmount  int64        `json:"target_amount"`
	TargetQuantity float64     `json:"target_quantity"`
}

// Sales is the aggregate totals the pricing engine computes.
type Sales struct {
	TotalAmount         int64 `json:"total_amount"`
	TaxAmount           int64 `json:"tax_amount"`
	TotalAmountWithTax  int64 `json:"total_amount_with_tax"`
	TotalDiscountAmount int64 `json:"total_discount_amount"`
	TotalQuantity       float64 `json:"total_quantity"`
	BalanceAmount       int64 `json:"balance_amount"`
	ChangeAmount        int64 `json:"change_amount"`
	IsCancelled         bool  `json:"is_cancelled"`
	IsStampDutyApplied  bool  `json:"is_stamp_duty_applied"`
	StampDutyAmount     int64 `json:"stamp_duty_amount,omitempty"`
}

// TransactionType enumerates the tranlog kinds a cart can finalise into.
type TransactionType string

const (
	TransactionNormalSales TransactionType = "NormalSales"
	TransactionReturnSales TransactionType = "ReturnSales"
	TransactionVoidSales   TransactionType = "VoidSales"
	TransactionVoidReturn  TransactionType = "VoidReturn"
)

// Masters is the frozen master-data snapshot a cart owns once it touches
// an item/tax. Never shared with the repository's own in-memory state, so
// two carts racing on one terminal cannot clobber each other's snapshot.
type Masters struct {
	Items    map[string]master.Item          `json:"items,omitempty"`
	Taxes    map[string]master.Tax           `json:"taxes,omitempty"`
	Payments map[string]master.PaymentMethod `json:"payments,omitempty"`
}

// Cart is the mutable pre-transaction aggregate.
type Cart struct {
	CartID          string          `json:"cart_id"`
	TenantID        string          `json:"tenant_id"`
	StoreCode       string          `json:"store_code"`
	TerminalNo      int             `json:"terminal_no"`
	Status          Status          `json:"status"`
	TransactionType TransactionType `json:"transaction_type"`
	Staff           master.Staff    `json:"staff"`

	LineItems         []LineItem `json:"line_items"`
	SubtotalDiscounts []Discount `json:"subtotal_discounts"`
	Payments          []Payment  `json:"payments"`
	Taxes             []Tax      `json:"taxes"`
	Sales             Sales      `json:"sales"`

	Masters Masters `json:"masters"`

	BusinessDate    string `json:"business_date"`
	OpenCounter     int    `json:"open_counter"`
	BusinessCounter int    `json:"business_counter"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// nonCancelledLines returns the lines still counted towards totals.
func (c *Cart) nonCancelledLines() []*LineItem {
	var out []*LineItem
	for i := range c.LineItems {
		if !c.LineItems[i].IsCancelled {
			out = append(out, &c.LineItems[i])
		}
	}
	return out
}

// NextLineNo returns the 1-based line number the next AddItem call gets.
func (c *Cart) NextLineNo() int {
	return len(c.LineItems) + 1
}

// NextPaymentNo returns the 1-based payment number the next AddPayment call gets.
func (c *Cart) NextPaymentNo() int {
	return len(c.Payments) + 1
}
