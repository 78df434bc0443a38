// Package tranlog implements the transaction finaliser: allocating
// receipt/transaction numbers, writing the immutable tranlog record, and
// driving void/return against the decoupled TransactionStatus document.
package tranlog

import (
	"time"

	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/master"
)

// AdditionalInfo carries the per-tenant settings baked onto the receipt
//: invoice registration number and header/footer lines (stamp duty
// lives on Sales).
type AdditionalInfo struct {
	InvoiceRegistrationNumber string              `json:"invoice_registration_number,omitempty"`
	ReceiptHeaders            []ReceiptLine       `json:"receipt_headers,omitempty"`
	ReceiptFooters            []ReceiptLine       `json:"receipt_footers,omitempty"`
}

// ReceiptLine is one header/footer row.
type ReceiptLine struct {
	Text  string `json:"text"`
	Align string `json:"align"`
}

// Origin references the tranlog a void/return was derived from.
type Origin struct {
	TransactionNo int64  `json:"transaction_no"`
	ReceiptNo     int64  `json:"receipt_no"`
}

// TransactionLog is the immutable record written by Bill/Void/Return.
type TransactionLog struct {
	TenantID        string              `json:"tenant_id"`
	StoreCode       string              `json:"store_code"`
	TerminalNo      int                 `json:"terminal_no"`
	TransactionNo   int64               `json:"transaction_no"`
	ReceiptNo       int64               `json:"receipt_no"`
	TransactionType cart.TransactionType `json:"transaction_type"`

	GenerateDateTime time.Time `json:"generate_date_time"`
	BusinessDate     string    `json:"business_date"`
	OpenCounter      int       `json:"open_counter"`
	BusinessCounter  int       `json:"business_counter"`
	Staff            master.Staff `json:"staff"`

	LineItems         []cart.LineItem `json:"line_items"`
	SubtotalDiscounts []cart.Discount `json:"subtotal_discounts"`
	Payments          []cart.Payment  `json:"payments"`
	Taxes             []cart.Tax      `json:"taxes"`
	Sales             cart.Sales      `json:"sales"`

	Origin *Origin `json:"origin,omitempty"`

	ReceiptText string `json:"receipt_text,omitempty"`
	JournalText string `json:"journal_text,omitempty"`

	AdditionalInfo AdditionalInfo `json:"additional_info"`
}

// Key returns the (tenant, store, terminal, transaction_no) identity tuple.
func (t TransactionLog) Key() string {
	return t.TenantID + "|" + t.StoreCode + "|" + intKey(t.TerminalNo) + "|" + intKey64(t.TransactionNo)
}

func intKey(n int) string   { return intKey64(int64(n)) }
func intKey64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TransactionStatus tracks mutable void/refund state decoupled from the
// immutable tranlog.
type TransactionStatus struct {
	TenantID        string `json:"tenant_id"`
	StoreCode       string `json:"store_code"`
	TerminalNo      int    `json:"terminal_no"`
	TransactionNo   int64  `json:"transaction_no"`

	IsVoided        bool  `json:"is_voided"`
	VoidTransactionNo *int64 `json:"void_transaction_no,omitempty"`

	IsRefunded        bool   `json:"is_refunded"`
	ReturnTransactionNo *int64 `json:"return_transaction_no,omitempty"`
}
