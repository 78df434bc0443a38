package cart

import (
	"context"
	"sort"

	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/money"
	"github.com/shopspring/decimal"
)

// TaxResolver looks up tax-master rows by code, used by Subtotal to decide
// each tax code's type/rate. Implementations are expected to
// be backed by the frozen per-cart master.Cache snapshot, not a shared mutable map.
type TaxResolver func(ctx context.Context, taxCode string) (master.Tax, error)

// Subtotal recomputes every derived field on the cart: line net amounts,
// subtotal-discount allocation, per-tax-code buckets, and the Sales
// aggregate. It is deterministic — the same cart content
// always yields bit-for-bit identical output, rounding included — and is
// re-run on every mutating operation, not only the Subtotal FSM event.
func Subtotal(ctx context.Context, c *Cart, resolveTax TaxResolver, mode money.Mode) error {
	lines := c.nonCancelledLines()

	// Step 1: gross, line discounts, net_line.
	var totalQuantity float64
	var lineDiscountTotal int64
	for _, line := range lines {
		gross := money.FromInt(line.UnitPrice).Mul(decimal.NewFromFloat(line.Quantity))
		line.GrossAmount = money.Round(gross, mode)
		running := gross
		for i := range line.Discounts {
			amt := applyDiscount(running, &line.Discounts[i], mode)
			running = running.Sub(decimal.NewFromInt(amt))
			lineDiscountTotal += amt
		}
		line.NetAmount = money.Round(running, mode)
		totalQuantity += line.Quantity
	}

	// Step 2: cart-level subtotal discounts on the running non-cancelled net total.
	var netBeforeSubtotalDiscounts int64
	for _, line := range lines {
		netBeforeSubtotalDiscounts += line.NetAmount
	}
	runningCartNet := decimal.NewFromInt(netBeforeSubtotalDiscounts)
	var subtotalDiscountTotal int64
	for i := range c.SubtotalDiscounts {
		amt := applyDiscount(runningCartNet, &c.SubtotalDiscounts[i], mode)
		runningCartNet = runningCartNet.Sub(decimal.NewFromInt(amt))
		subtotalDiscountTotal += amt
	}

	// Step 3: allocate each subtotal discount back to lines proportionally
	// to their (pre-subtotal-discount) net amount, so tax math and
	// per-line reporting agree on what each line actually contributed.
	allocated := allocateProportionally(lines, netBeforeSubtotalDiscounts, subtotalDiscountTotal)
	for i, line := range lines {
		line.DiscountsAllocated = nil
		if allocated[i] != 0 {
			line.DiscountsAllocated = []Discount{{
				DiscountType:   DiscountAmount,
				DiscountAmount: allocated[i],
				DiscountDetail: "subtotal discount allocation",
			}}
		}
	}

	// Step 4: per-tax-code buckets on the post-(line+subtotal)-discount net.
	type bucket struct {
		targetAmount   int64
		targetQuantity float64
	}
	buckets := make(map[string]*bucket)
	var order []string
	for i, line := range lines {
		netAfterAllocation := line.NetAmount - allocated[i]
		b, ok := buckets[line.TaxCode]
		if !ok {
			b = &bucket{}
			buckets[line.TaxCode] = b
			order = append(order, line.TaxCode)
		}
		b.targetAmount += netAfterAllocation
		b.targetQuantity += line.Quantity
	}
	sort.Strings(order)

	c.Taxes = c.Taxes[:0]
	var externalTax int64
	taxNo := 1
	for _, code := range order {
		if code == "" {
			continue
		}
		b := buckets[code]
		taxMaster, err := resolveTax(ctx, code)
		if err != nil {
			return err
		}
		var taxAmount int64
		switch taxMaster.TaxType {
		case master.TaxExternal:
			taxAmount = money.Round(decimal.NewFromInt(b.targetAmount).Mul(decimal.NewFromFloat(taxMaster.Rate)), mode)
			externalTax += taxAmount
		case master.TaxInternal:
			rate := decimal.NewFromFloat(taxMaster.Rate)
			divisor := decimal.NewFromInt(1).Add(rate)
			taxAmount = money.Round(decimal.NewFromInt(b.targetAmount).Mul(rate).Div(divisor), mode)
		case master.TaxExempt:
			taxAmount = 0
		}
		c.Taxes = append(c.Taxes, Tax{
			TaxNo:          taxNo,
			TaxCode:        code,
			TaxType:        taxMaster.TaxType,
			TaxName:        taxMaster.TaxName,
			TaxAmount:      taxAmount,
			TargetAmount:   b.targetAmount,
			TargetQuantity: b.targetQuantity,
		})
		taxNo++
	}

	// Step 5-6: totals and balance.
	totalAmount := netBeforeSubtotalDiscounts - subtotalDiscountTotal
	var paid int64
	for _, p := range c.Payments {
		paid += p.Amount
	}
	// Recompute only the derived totals; change and the stamp-duty /
	// cancelled flags are owned by the payment and finalise paths.
	c.Sales = Sales{
		TotalAmount:         totalAmount,
		TaxAmount:           externalTax,
		TotalAmountWithTax:  totalAmount + externalTax,
		TotalDiscountAmount: lineDiscountTotal + subtotalDiscountTotal,
		TotalQuantity:       totalQuantity,
		BalanceAmount:       totalAmount + externalTax - paid,
		ChangeAmount:        c.Sales.ChangeAmount,
		IsCancelled:         c.Sales.IsCancelled,
		IsStampDutyApplied:  c.Sales.IsStampDutyApplied,
		StampDutyAmount:     c.Sales.StampDutyAmount,
	}
	return nil
}

// applyDiscount mutates d.DiscountAmount in place based on running (the
// amount the discount is computed against) and returns the realised
// discount amount; line discounts apply in list order.
func applyDiscount(running decimal.Decimal, d *Discount, mode money.Mode) int64 {
	var amt int64
	switch d.DiscountType {
	case DiscountPercentage:
		pct := decimal.NewFromFloat(d.DiscountValue).Div(decimal.NewFromInt(100))
		amt = money.Round(running.Mul(pct), mode)
	default: // DiscountAmount
		amt = money.Round(decimal.NewFromFloat(d.DiscountValue), mode)
	}
	if amt > running.IntPart() {
		amt = running.IntPart()
	}
	if amt < 0 {
		amt = 0
	}
	d.DiscountAmount = amt
	return amt
}

// allocateProportionally splits totalDiscount across lines in proportion
// to their net amount share of totalNet, assigning any rounding remainder
// to the line with the largest share so the allocations always sum to
// exactly totalDiscount.
func allocateProportionally(lines []*LineItem, totalNet, totalDiscount int64) []int64 {
	out := make([]int64, len(lines))
	if totalDiscount == 0 || totalNet <= 0 {
		return out
	}
	var allocated int64
	largestIdx := -1
	var largestNet int64 = -1
	for i, line := range lines {
		share := decimal.NewFromInt(totalDiscount).Mul(decimal.NewFromInt(line.NetAmount)).Div(decimal.NewFromInt(totalNet))
		out[i] = share.Floor().IntPart()
		allocated += out[i]
		if line.NetAmount > largestNet {
			largestNet = line.NetAmount
			largestIdx = i
		}
	}
	remainder := totalDiscount - allocated
	if remainder != 0 && largestIdx >= 0 {
		out[largestIdx] += remainder
	}
	return out
}
