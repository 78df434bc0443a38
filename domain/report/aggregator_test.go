package report

import (
	"testing"

	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/stretchr/testify/assert"
)

// TestSummarize_InternalTaxSubtractedFromNet pins the net-sales identity:
// sales_net must subtract ALL tax, including Internal, not just the
// externally-itemised tax_amount — internal tax hides inside
// tax-inclusive totals and is easy to leave in.
func TestSummarize_InternalTaxSubtractedFromNet(t *testing.T) {
	rows := []TranlogRow{
		{
			TransactionType: cart.TransactionNormalSales,
			TotalAmount:     1100,
			TotalDiscountAmount: 0,
			Taxes: []cart.Tax{
				{TaxCode: "T1", TaxType: master.TaxInternal, TaxAmount: 100},
			},
		},
	}

	doc := Summarize(rows, CashInputs{}, nil)

	assert.Equal(t, int64(1100), doc.SalesGross.Amount)
	assert.Equal(t, int64(1000), doc.SalesNet.Amount, "internal tax must be backed out of sales_net")
	assert.Len(t, doc.Taxes, 1)
	assert.Equal(t, int64(100), doc.Taxes[0].TaxAmount)
}

// TestSummarize_MultiTaxMultiPaymentNoCartesianBlowup: rows carrying
// more than one tax code and more than one payment code must each
// contribute exactly once to the transaction count, never once per
// (tax, payment) pair — the hazard a document-store pipeline hits when
// it unwinds two sibling arrays against each other.
func TestSummarize_MultiTaxMultiPaymentNoCartesianBlowup(t *testing.T) {
	rows := []TranlogRow{
		{
			TransactionType: cart.TransactionNormalSales,
			TotalAmount:     3000,
			Taxes: []cart.Tax{
				{TaxCode: "T1", TaxType: master.TaxExternal, TaxAmount: 100},
				{TaxCode: "T2", TaxType: master.TaxExternal, TaxAmount: 50},
			},
			Payments: []cart.Payment{
				{PaymentCode: "cash", Amount: 2000},
				{PaymentCode: "credit", Amount: 1150},
			},
		},
	}

	doc := Summarize(rows, CashInputs{}, nil)

	assert.Equal(t, 1, doc.TransactionCount, "one tranlog row must count once, not once per tax/payment combination")
	assert.Len(t, doc.Taxes, 2)
	assert.Len(t, doc.Payments, 2)

	var cashAmt, creditAmt int64
	for _, p := range doc.Payments {
		switch p.PaymentCode {
		case "cash":
			cashAmt = p.Amount
		case "credit":
			creditAmt = p.Amount
		}
	}
	assert.Equal(t, int64(2000), cashAmt)
	assert.Equal(t, int64(1150), creditAmt)
}

// TestSummarize_VoidReversesOriginal pins the transaction-type factor:
// a VoidSales row must subtract back out of sales_gross.
func TestSummarize_VoidReversesOriginal(t *testing.T) {
	rows := []TranlogRow{
		{TransactionType: cart.TransactionNormalSales, TotalAmount: 1000, TotalQuantity: 1},
		{TransactionType: cart.TransactionVoidSales, TotalAmount: 1000, TotalQuantity: 1},
	}

	doc := Summarize(rows, CashInputs{}, nil)

	assert.Equal(t, int64(0), doc.SalesGross.Amount)
	assert.Equal(t, 0, doc.SalesGross.Count)
}

// TestSummarize_CashBlockJoinsPaymentsAndLog checks the cash block nets
// cash-tender payments against the CashInOutLog sums and the close
// physical amount.
func TestSummarize_CashBlockJoinsPaymentsAndLog(t *testing.T) {
	rows := []TranlogRow{
		{
			TransactionType: cart.TransactionNormalSales,
			TotalAmount:     1000,
			Payments:        []cart.Payment{{PaymentCode: "cash", Amount: 1000}},
		},
	}

	doc := Summarize(rows, CashInputs{CashInAmount: 500, CashOutAmount: -200, PhysicalAmount: 1300}, map[string]bool{"cash": true})

	assert.Equal(t, int64(1300), doc.Cash.LogicalAmount) // 1000 + 500 - 200
	assert.Equal(t, int64(1300), doc.Cash.PhysicalAmount)
	assert.Equal(t, int64(0), doc.Cash.DifferenceAmount)
}
