// Package master models the read-mostly master-data collections the core
// consumes but does not own the CRUD surface of — item/tax/payment-method/
// category/staff CRUD lives in a separate service. It exposes the loader
// contract and the per-service in-memory cache.
package master

import "context"

// TaxType classifies how a tax interacts with the quoted price.
type TaxType string

const (
	TaxInternal TaxType = "Internal"
	TaxExternal TaxType = "External"
	TaxExempt   TaxType = "Exempt"
)

// Tax is one row of the tax master consulted by the pricing engine.
type Tax struct {
	TaxCode string  `json:"tax_code"`
	TaxName string  `json:"tax_name"`
	TaxType TaxType `json:"tax_type"`
	Rate    float64 `json:"rate"` // e.g. 0.10 for 10%
}

// Item is one row of the item master — the read shape the cart freezes a
// copy of when a line touches it.
type Item struct {
	ItemCode     string `json:"item_code"`
	CategoryCode string `json:"category_code"`
	Description  string `json:"description"`
	UnitPrice    int64  `json:"unit_price"`
	TaxCode      string `json:"tax_code"`
	IsDiscountRestricted bool `json:"is_discount_restricted"`
}

// PaymentMethod is one row of the payment master.
// HandlerType selects which domain/payment.Strategy processes this code
// Several payment codes, e.g. local and foreign cash, can share one
// handler type.
type PaymentMethod struct {
	PaymentCode    string `json:"payment_code"`
	Description    string `json:"description"`
	HandlerType    string `json:"handler_type"`
	CanRefund      bool   `json:"can_refund"`
	CanDepositOver bool   `json:"can_deposit_over"`
	CanChange      bool   `json:"can_change"`
}

// Staff is the embedded id+name carried on Terminal/Cart/Tranlog.
type Staff struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store is the per-tenant master-data read surface: simple keyed stores
// this core consumes. Implementations call out to the master-data
// service; the core only ever reads through here.
type Store interface {
	GetItem(ctx context.Context, tenantID, itemCode string) (*Item, error)
	GetTax(ctx context.Context, tenantID, taxCode string) (*Tax, error)
	GetPaymentMethod(ctx context.Context, tenantID, paymentCode string) (*PaymentMethod, error)
	ListTaxes(ctx context.Context, tenantID string) ([]Tax, error)
}
