package cart

import (
	"context"
	"testing"

	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taxResolver(taxes map[string]master.Tax) TaxResolver {
	return func(ctx context.Context, taxCode string) (master.Tax, error) {
		return taxes[taxCode], nil
	}
}

var standardTaxes = map[string]master.Tax{
	"10E": {TaxCode: "10E", TaxName: "10% external", TaxType: master.TaxExternal, Rate: 0.10},
	"10I": {TaxCode: "10I", TaxName: "10% internal", TaxType: master.TaxInternal, Rate: 0.10},
	"08E": {TaxCode: "08E", TaxName: "8% external", TaxType: master.TaxExternal, Rate: 0.08},
	"EX":  {TaxCode: "EX", TaxName: "exempt", TaxType: master.TaxExempt},
}

// Two units at 100 with 10% external tax.
func TestSubtotal_ExternalTax(t *testing.T) {
	c := &Cart{LineItems: []LineItem{
		{LineNo: 1, ItemCode: "49-01", UnitPrice: 100, Quantity: 2, TaxCode: "10E"},
	}}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))

	assert.Equal(t, int64(200), c.Sales.TotalAmount)
	assert.Equal(t, int64(20), c.Sales.TaxAmount)
	assert.Equal(t, int64(220), c.Sales.TotalAmountWithTax)
	assert.Equal(t, int64(220), c.Sales.BalanceAmount)
	require.Len(t, c.Taxes, 1)
	assert.Equal(t, int64(20), c.Taxes[0].TaxAmount)
	assert.Equal(t, int64(200), c.Taxes[0].TargetAmount)
}

// Internal tax sits only in taxes[], never in sales.tax_amount: 1100
// tax-inclusive at 10% carries 100 of embedded tax.
func TestSubtotal_InternalTaxExcludedFromSalesTaxAmount(t *testing.T) {
	c := &Cart{LineItems: []LineItem{
		{LineNo: 1, UnitPrice: 1100, Quantity: 1, TaxCode: "10I"},
	}}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))

	assert.Equal(t, int64(1100), c.Sales.TotalAmount)
	assert.Equal(t, int64(0), c.Sales.TaxAmount, "internal tax never enters sales.tax_amount")
	assert.Equal(t, int64(1100), c.Sales.TotalAmountWithTax)
	require.Len(t, c.Taxes, 1)
	assert.Equal(t, int64(100), c.Taxes[0].TaxAmount)
}

func TestSubtotal_ExemptTaxIsZero(t *testing.T) {
	c := &Cart{LineItems: []LineItem{
		{LineNo: 1, UnitPrice: 500, Quantity: 1, TaxCode: "EX"},
	}}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))
	require.Len(t, c.Taxes, 1)
	assert.Equal(t, int64(0), c.Taxes[0].TaxAmount)
	assert.Equal(t, int64(500), c.Sales.TotalAmountWithTax)
}

func TestSubtotal_LineDiscountsApplyInOrder(t *testing.T) {
	c := &Cart{LineItems: []LineItem{
		{
			LineNo: 1, UnitPrice: 1000, Quantity: 1, TaxCode: "10E",
			Discounts: []Discount{
				{DiscountType: DiscountPercentage, DiscountValue: 10}, // -100 on 1000
				{DiscountType: DiscountAmount, DiscountValue: 50},     // -50 on the remaining 900
			},
		},
	}}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))

	assert.Equal(t, int64(100), c.LineItems[0].Discounts[0].DiscountAmount)
	assert.Equal(t, int64(50), c.LineItems[0].Discounts[1].DiscountAmount)
	assert.Equal(t, int64(850), c.Sales.TotalAmount)
	assert.Equal(t, int64(150), c.Sales.TotalDiscountAmount)
	assert.Equal(t, int64(85), c.Sales.TaxAmount, "tax computed on post-discount net")
}

// Subtotal discounts allocate back to lines proportionally, remainder to
// the largest line, so allocations always sum to the discount.
func TestSubtotal_SubtotalDiscountAllocation(t *testing.T) {
	c := &Cart{
		LineItems: []LineItem{
			{LineNo: 1, UnitPrice: 300, Quantity: 1, TaxCode: "10E"},
			{LineNo: 2, UnitPrice: 700, Quantity: 1, TaxCode: "10E"},
		},
		SubtotalDiscounts: []Discount{{DiscountType: DiscountAmount, DiscountValue: 100}},
	}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))

	assert.Equal(t, int64(900), c.Sales.TotalAmount)
	var allocated int64
	for _, line := range c.LineItems {
		for _, d := range line.DiscountsAllocated {
			allocated += d.DiscountAmount
		}
	}
	assert.Equal(t, int64(100), allocated, "allocations must sum to the subtotal discount exactly")
	assert.Equal(t, int64(90), c.Sales.TaxAmount, "tax on 900 post-allocation")
}

func TestSubtotal_CancelledLinesExcluded(t *testing.T) {
	c := &Cart{LineItems: []LineItem{
		{LineNo: 1, UnitPrice: 100, Quantity: 1, TaxCode: "10E", IsCancelled: true},
		{LineNo: 2, UnitPrice: 200, Quantity: 1, TaxCode: "10E"},
	}}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))
	assert.Equal(t, int64(200), c.Sales.TotalAmount)
	assert.Equal(t, 1.0, c.Sales.TotalQuantity)
}

func TestSubtotal_MultipleTaxCodesBucketSeparately(t *testing.T) {
	c := &Cart{LineItems: []LineItem{
		{LineNo: 1, UnitPrice: 1000, Quantity: 1, TaxCode: "10E"},
		{LineNo: 2, UnitPrice: 1000, Quantity: 1, TaxCode: "08E"},
	}}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))

	require.Len(t, c.Taxes, 2)
	byCode := map[string]Tax{}
	for _, tax := range c.Taxes {
		byCode[tax.TaxCode] = tax
	}
	assert.Equal(t, int64(100), byCode["10E"].TaxAmount)
	assert.Equal(t, int64(80), byCode["08E"].TaxAmount)
	assert.Equal(t, int64(2180), c.Sales.TotalAmountWithTax)
}

// Pricing is a pure function of cart content: running it twice settles on
// identical output.
func TestSubtotal_Idempotent(t *testing.T) {
	c := &Cart{
		LineItems: []LineItem{
			{LineNo: 1, UnitPrice: 333, Quantity: 3, TaxCode: "10E", Discounts: []Discount{{DiscountType: DiscountPercentage, DiscountValue: 7}}},
			{LineNo: 2, UnitPrice: 42, Quantity: 1.5, TaxCode: "10I"},
		},
		SubtotalDiscounts: []Discount{{DiscountType: DiscountAmount, DiscountValue: 30}},
	}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))
	first := c.Sales
	firstTaxes := append([]Tax(nil), c.Taxes...)

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))
	assert.Equal(t, first, c.Sales)
	assert.Equal(t, firstTaxes, c.Taxes)
}

func TestSubtotal_BalanceReflectsPayments(t *testing.T) {
	c := &Cart{
		LineItems: []LineItem{{LineNo: 1, UnitPrice: 100, Quantity: 2, TaxCode: "10E"}},
		Payments:  []Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 120}},
	}

	require.NoError(t, Subtotal(context.Background(), c, taxResolver(standardTaxes), money.ModeBankers))
	assert.Equal(t, int64(100), c.Sales.BalanceAmount)
}
