package report

import (
	"github.com/kugelpos/transactional-core/domain/cart"
)

// typeGroup accumulates one transaction_type's contribution within one
// business-criteria bucket. Every row is counted exactly once here, so
// there is no sibling-array unwind to multiply tax/payment entries into
// a Cartesian product.
type typeGroup struct {
	transactionCount int

	totalAmount         int64
	totalAmountWithTax  int64
	totalTaxAll         int64
	totalQuantity       float64
	totalChangeAmount   int64
	totalDiscountAmount int64

	lineDiscountAmount   int64
	lineDiscountCount    int
	lineDiscountQuantity float64

	subtotalDiscountAmount   int64
	subtotalDiscountCount    int
	subtotalDiscountQuantity float64

	taxes    map[string]TaxBucket
	payments map[string]PaymentBucket
}

func newTypeGroup() *typeGroup {
	return &typeGroup{taxes: map[string]TaxBucket{}, payments: map[string]PaymentBucket{}}
}

func (g *typeGroup) add(row TranlogRow) {
	g.transactionCount++
	g.totalAmount += row.TotalAmount
	g.totalAmountWithTax += row.TotalAmountWithTax
	g.totalTaxAll += row.totalTaxAll()
	g.totalQuantity += row.TotalQuantity
	g.totalChangeAmount += row.ChangeAmount
	g.totalDiscountAmount += row.TotalDiscountAmount
	g.lineDiscountAmount += row.LineDiscountAmount
	g.lineDiscountCount += row.LineDiscountCount
	g.lineDiscountQuantity += row.LineDiscountQuantity
	g.subtotalDiscountAmount += row.SubtotalDiscountAmount
	g.subtotalDiscountCount += row.SubtotalDiscountCount
	g.subtotalDiscountQuantity += row.SubtotalDiscountQuantity

	for _, t := range row.Taxes {
		if t.TaxCode == "" {
			continue // preserveNullAndEmptyArrays equivalent: no tax on this row
		}
		b := g.taxes[t.TaxCode]
		b.TaxCode = t.TaxCode
		b.TaxType = string(t.TaxType)
		b.TaxName = t.TaxName
		b.TaxAmount += t.TaxAmount
		b.TargetAmount += t.TargetAmount
		b.TargetQuantity += t.TargetQuantity
		g.taxes[t.TaxCode] = b
	}
	for _, p := range row.Payments {
		if p.PaymentCode == "" {
			continue
		}
		b := g.payments[p.PaymentCode]
		b.PaymentCode = p.PaymentCode
		b.PaymentName = p.Description
		b.Amount += p.Amount
		b.Count++
		g.payments[p.PaymentCode] = b
	}
}

// Fold is the first reduction stage: group rows by transaction_type
// (business-criteria scoping is the caller's job via the row filter that
// produced rows in the first place, e.g. one tenant/store/business_date/
// terminal). Each row contributes to its type bucket exactly once.
func Fold(rows []TranlogRow) map[cart.TransactionType]*typeGroup {
	groups := make(map[cart.TransactionType]*typeGroup)
	for _, row := range rows {
		g, ok := groups[row.TransactionType]
		if !ok {
			g = newTypeGroup()
			groups[row.TransactionType] = g
		}
		g.add(row)
	}
	return groups
}

func groupOrZero(groups map[cart.TransactionType]*typeGroup, t cart.TransactionType) *typeGroup {
	if g, ok := groups[t]; ok {
		return g
	}
	return newTypeGroup()
}

// CashInputs carries the session-level facts the sales report's `cash`
// block joins against the aggregation output: the CashInOutLog
// summary and the close OpenCloseLog's recorded physical amount.
type CashInputs struct {
	CashInAmount   int64
	CashInCount    int
	CashOutAmount  int64 // stored negative, matching CashInOutLog.Amount's sign convention
	CashOutCount   int
	PhysicalAmount int64
}

// Summarize reduces the per-type groups into the final ReportDocument
// fields, applying the transaction-type factor in this post-fold pass.
// cashPaymentCodes
// selects which payment buckets count towards the `cash` block's logical
// amount — the caller supplies the set (the report service reads it from
// its configuration), rather than this fold hardcoding one literal code.
func Summarize(rows []TranlogRow, cash CashInputs, cashPaymentCodes map[string]bool) ReportDocument {
	groups := Fold(rows)

	normal := groupOrZero(groups, cart.TransactionNormalSales)
	voidSales := groupOrZero(groups, cart.TransactionVoidSales)
	returnSales := groupOrZero(groups, cart.TransactionReturnSales)
	voidReturn := groupOrZero(groups, cart.TransactionVoidReturn)

	doc := ReportDocument{
		SalesGross: AmountQuantityCount{
			Amount:   (normal.totalAmount + normal.totalDiscountAmount) - (voidSales.totalAmount + voidSales.totalDiscountAmount),
			Quantity: normal.totalQuantity - voidSales.totalQuantity,
			Count:    normal.transactionCount - voidSales.transactionCount,
		},
		Returns: AmountQuantityCount{
			Amount:   returnSales.totalAmount - voidReturn.totalAmount,
			Quantity: returnSales.totalQuantity - voidReturn.totalQuantity,
			Count:    returnSales.transactionCount - voidReturn.transactionCount,
		},
	}

	taxBuckets := map[string]TaxBucket{}
	paymentBuckets := map[string]PaymentBucket{}
	var cashFromPayments int64

	for txnType, g := range groups {
		factor := Factor(txnType)

		doc.SalesNet.Amount += factor * (g.totalAmount - g.totalTaxAll)
		doc.SalesNet.Quantity += float64(factor) * g.totalQuantity
		doc.SalesNet.Count += int(factor) * g.transactionCount

		doc.DiscountForLineItems.Amount += factor * g.lineDiscountAmount
		doc.DiscountForLineItems.Quantity += float64(factor) * g.lineDiscountQuantity
		doc.DiscountForLineItems.Count += int(factor) * g.lineDiscountCount

		doc.DiscountForSubtotal.Amount += factor * g.subtotalDiscountAmount
		doc.DiscountForSubtotal.Quantity += float64(factor) * g.subtotalDiscountQuantity
		doc.DiscountForSubtotal.Count += int(factor) * g.subtotalDiscountCount

		doc.TransactionCount += int(factor) * g.transactionCount

		for code, tax := range g.taxes {
			b := taxBuckets[code]
			b.TaxCode = tax.TaxCode
			b.TaxType = tax.TaxType
			b.TaxName = tax.TaxName
			b.TaxAmount += factor * tax.TaxAmount
			b.TargetAmount += factor * tax.TargetAmount
			b.TargetQuantity += float64(factor) * tax.TargetQuantity
			taxBuckets[code] = b
		}
		for code, pay := range g.payments {
			b := paymentBuckets[code]
			b.PaymentCode = pay.PaymentCode
			b.PaymentName = pay.PaymentName
			b.Amount += factor * pay.Amount
			b.Count += int(factor) * pay.Count
			paymentBuckets[code] = b
			if cashPaymentCodes[code] {
				cashFromPayments += factor * pay.Amount
			}
		}
	}

	for _, b := range taxBuckets {
		doc.Taxes = append(doc.Taxes, b)
	}
	for _, b := range paymentBuckets {
		doc.Payments = append(doc.Payments, b)
	}

	logical := cashFromPayments + cash.CashInAmount + cash.CashOutAmount
	doc.Cash = CashSummary{
		LogicalAmount:    logical,
		PhysicalAmount:   cash.PhysicalAmount,
		DifferenceAmount: cash.PhysicalAmount - logical,
		CashIn:           CashInOutSummary{Amount: cash.CashInAmount, Count: cash.CashInCount},
		CashOut:          CashInOutSummary{Amount: cash.CashOutAmount, Count: cash.CashOutCount},
	}

	return doc
}
