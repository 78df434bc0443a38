package tranlog

import (
	"fmt"
	"strings"
)

// ReceiptComposer is the receipt-data plugin contract: given
// a finalised tranlog, produce the printable receipt and journal text.
// A Finaliser is built with one composer (DefaultReceiptComposer when
// none is given); there is no per-tenant registry of composers.
type ReceiptComposer interface {
	Compose(t *TransactionLog) (receiptText, journalText string)
}

// DefaultReceiptComposer renders a plain-text receipt: header lines, one
// row per line item, totals, payments, stamp duty, footer lines. The
// journal text is the same content with a "JOURNAL COPY" banner, so
// receipt and journal text stay independently regenerable from the same
// tranlog fields.
type DefaultReceiptComposer struct{}

func (DefaultReceiptComposer) Compose(t *TransactionLog) (string, string) {
	var b strings.Builder
	for _, h := range t.AdditionalInfo.ReceiptHeaders {
		writeAligned(&b, h.Text, h.Align)
	}
	fmt.Fprintf(&b, "Receipt No: %d  Txn No: %d\n", t.ReceiptNo, t.TransactionNo)
	fmt.Fprintf(&b, "%s\n", t.GenerateDateTime.Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("-", 32) + "\n")
	for _, line := range t.LineItems {
		if line.IsCancelled {
			continue
		}
		fmt.Fprintf(&b, "%-20s %6.2f x %8d\n", line.Description, line.Quantity, line.UnitPrice)
	}
	b.WriteString(strings.Repeat("-", 32) + "\n")
	fmt.Fprintf(&b, "Subtotal: %d\n", t.Sales.TotalAmount)
	fmt.Fprintf(&b, "Tax: %d\n", t.Sales.TaxAmount)
	fmt.Fprintf(&b, "Total: %d\n", t.Sales.TotalAmountWithTax)
	if t.Sales.IsStampDutyApplied {
		fmt.Fprintf(&b, "Stamp duty: %d\n", t.Sales.StampDutyAmount)
	}
	for _, p := range t.Payments {
		fmt.Fprintf(&b, "%s: %d\n", p.Description, p.Amount)
	}
	if t.Sales.ChangeAmount != 0 {
		fmt.Fprintf(&b, "Change: %d\n", t.Sales.ChangeAmount)
	}
	if t.AdditionalInfo.InvoiceRegistrationNumber != "" {
		fmt.Fprintf(&b, "Invoice Reg No: %s\n", t.AdditionalInfo.InvoiceRegistrationNumber)
	}
	for _, f := range t.AdditionalInfo.ReceiptFooters {
		writeAligned(&b, f.Text, f.Align)
	}
	receipt := b.String()

	var j strings.Builder
	j.WriteString("JOURNAL COPY\n")
	j.WriteString(receipt)
	return receipt, j.String()
}

func writeAligned(b *strings.Builder, text, align string) {
	switch align {
	case "center":
		fmt.Fprintf(b, "%32s\n", text)
	default:
		fmt.Fprintf(b, "%s\n", text)
	}
}
