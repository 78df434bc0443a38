// Package report implements the Report Aggregator and Reconciliation Gate
//: a deterministic in-process reduction over already-materialised
// tranlog rows that folds per-transaction tax/payment sub-documents into
// per-code buckets without ever unwinding a sibling array against another
// (the Cartesian-product blowup a double-unwind pipeline risks has no
// equivalent here by construction).
package report

import (
	"time"

	"github.com/kugelpos/transactional-core/domain/cart"
)

// Scope narrows the tranlog rows a report folds over: tenant/store are
// always required, terminal/open_counter narrow to one terminal/session,
// and the date range covers either a single business_date (flash/daily)
// or an arbitrary range query.
type Scope struct {
	TenantID     string
	StoreCode    string
	TerminalNo   *int
	BusinessDate string
	FromDate     string
	ToDate       string
	OpenCounter  *int
	ReportScope  string // "flash" | "daily"
	ReportType   string // "sales" | "payment" | "item" | "category"
	Filter       string // optional jsonpath row filter
}

// AmountQuantityCount is the {amount, quantity, count} triple every
// gross/net/discount/return block carries.
type AmountQuantityCount struct {
	Amount   int64   `json:"amount"`
	Quantity float64 `json:"quantity"`
	Count    int     `json:"count"`
}

// TaxBucket is one tax_code's aggregated contribution.
type TaxBucket struct {
	TaxCode        string  `json:"tax_code"`
	TaxType        string  `json:"tax_type,omitempty"`
	TaxName        string  `json:"tax_name"`
	TaxAmount      int64   `json:"tax_amount"`
	TargetAmount   int64   `json:"target_amount"`
	TargetQuantity float64 `json:"target_quantity"`
}

// PaymentBucket is one payment_code's aggregated contribution.
type PaymentBucket struct {
	PaymentCode string `json:"payment_code"`
	PaymentName string `json:"payment_name"`
	Amount      int64  `json:"amount"`
	Count       int    `json:"count"`
}

// CashInOutSummary is the {amount, count} pair for one direction of cash
// movement within the session.
type CashInOutSummary struct {
	Amount int64 `json:"amount"`
	Count  int   `json:"count"`
}

// CashSummary is the report's `cash` block: joins the in-process aggregation
// output with the CashInOutLog/OpenCloseLog summaries for the session.
type CashSummary struct {
	LogicalAmount   int64            `json:"logical_amount"`
	PhysicalAmount  int64            `json:"physical_amount"`
	DifferenceAmount int64           `json:"difference_amount"`
	CashIn          CashInOutSummary `json:"cash_in"`
	CashOut         CashInOutSummary `json:"cash_out"`
}

// ReportDocument is the derived output of the sales plugin.
type ReportDocument struct {
	TenantID        string    `json:"tenant_id"`
	StoreCode       string    `json:"store_code"`
	TerminalNo      *int      `json:"terminal_no,omitempty"`
	BusinessDate    string    `json:"business_date"`
	OpenCounter     int       `json:"open_counter,omitempty"`
	ReportScope     string    `json:"report_scope"`
	ReportType      string    `json:"report_type"`
	GenerateDateTime time.Time `json:"generate_date_time"`

	SalesGross          AmountQuantityCount `json:"sales_gross"`
	SalesNet            AmountQuantityCount `json:"sales_net"`
	Returns             AmountQuantityCount `json:"returns"`
	DiscountForLineItems AmountQuantityCount `json:"discount_for_lineitems"`
	DiscountForSubtotal AmountQuantityCount `json:"discount_for_subtotal"`

	Taxes    []TaxBucket     `json:"taxes"`
	Payments []PaymentBucket `json:"payments"`
	Cash     CashSummary     `json:"cash"`

	TransactionCount int `json:"transaction_count"`

	ReceiptText string `json:"receipt_text,omitempty"`
	JournalText string `json:"journal_text,omitempty"`
}

// TranlogRow is the flattened per-transaction shape the aggregator folds
// over — one row per tranlog, pre-computed sums standing in for the
// projection pass so the fold itself never has to
// walk LineItems/Discounts again.
type TranlogRow struct {
	TenantID        string
	StoreCode       string
	TerminalNo      int
	BusinessDate    string
	TransactionNo   int64
	TransactionType cart.TransactionType

	TotalAmount        int64
	TotalAmountWithTax int64
	TotalQuantity      float64
	ChangeAmount       int64
	TotalDiscountAmount int64

	LineDiscountAmount   int64
	LineDiscountCount    int
	LineDiscountQuantity float64

	SubtotalDiscountAmount   int64
	SubtotalDiscountCount    int
	SubtotalDiscountQuantity float64

	Taxes    []cart.Tax
	Payments []cart.Payment
}

// RowFromTranlog flattens a cart.Sales-bearing tranlog into the row shape
// the aggregator folds over, computing the per-line/subtotal discount
// sums that would otherwise have to be re-derived from LineItems on
// every fold.
func RowFromTranlog(tenantID, storeCode string, terminalNo int, businessDate string, transactionNo int64, transactionType cart.TransactionType, lineItems []cart.LineItem, subtotalDiscounts []cart.Discount, taxes []cart.Tax, payments []cart.Payment, sales cart.Sales) TranlogRow {
	row := TranlogRow{
		TenantID:            tenantID,
		StoreCode:           storeCode,
		TerminalNo:          terminalNo,
		BusinessDate:        businessDate,
		TransactionNo:       transactionNo,
		TransactionType:     transactionType,
		TotalAmount:         sales.TotalAmount,
		TotalAmountWithTax:  sales.TotalAmountWithTax,
		TotalQuantity:       sales.TotalQuantity,
		ChangeAmount:        sales.ChangeAmount,
		TotalDiscountAmount: sales.TotalDiscountAmount,
		Taxes:               taxes,
		Payments:            payments,
	}

	for _, line := range lineItems {
		if line.IsCancelled {
			continue
		}
		if len(line.Discounts) > 0 {
			row.LineDiscountCount += len(line.Discounts)
			row.LineDiscountQuantity += line.Quantity
			for _, d := range line.Discounts {
				row.LineDiscountAmount += d.DiscountAmount
			}
		}
		if len(line.DiscountsAllocated) > 0 {
			row.SubtotalDiscountQuantity += line.Quantity
		}
	}
	row.SubtotalDiscountCount = len(subtotalDiscounts)
	for _, d := range subtotalDiscounts {
		row.SubtotalDiscountAmount += d.DiscountAmount
	}
	return row
}

// totalTaxAll sums every tax entry on the row — Internal and External
// alike — the quantity sales_net backs out of total_amount, since
// Internal tax is embedded in tax-inclusive line amounts and never
// appears in sales.tax_amount.
func (r TranlogRow) totalTaxAll() int64 {
	var total int64
	for _, t := range r.Taxes {
		total += t.TaxAmount
	}
	return total
}

// Factor is the per-transaction-type sign: NormalSales and
// VoidReturn contribute positively, ReturnSales and VoidSales negatively.
func Factor(t cart.TransactionType) int64 {
	switch t {
	case cart.TransactionNormalSales, cart.TransactionVoidReturn:
		return 1
	case cart.TransactionReturnSales, cart.TransactionVoidSales:
		return -1
	default:
		return 0
	}
}
