package tranlog

import (
	"context"
	"time"

	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/config"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// Destinations every tranlog event is tracked against.
var tranlogDestinations = []string{"report", "journal", "stock"}

// Finaliser implements bill/void/return: allocating numbers,
// writing the immutable tranlog, and driving the DeliveryStatus/publish
// sequence shared by all three operations.
type Finaliser struct {
	repo       Repository
	statusRepo StatusRepository
	counters   CounterRepository
	tracker    *delivery.Tracker
	composer   ReceiptComposer
	settings   config.Settings
	logger     *logging.Logger
}

func NewFinaliser(repo Repository, statusRepo StatusRepository, counters CounterRepository, tracker *delivery.Tracker, composer ReceiptComposer, settings config.Settings, logger *logging.Logger) *Finaliser {
	if composer == nil {
		composer = DefaultReceiptComposer{}
	}
	if logger == nil {
		logger = logging.NewFromEnv("tranlog-finaliser")
	}
	return &Finaliser{repo: repo, statusRepo: statusRepo, counters: counters, tracker: tracker, composer: composer, settings: settings, logger: logger}
}

func convertReceiptLines(in []config.ReceiptLine) []ReceiptLine {
	out := make([]ReceiptLine, 0, len(in))
	for _, l := range in {
		out = append(out, ReceiptLine{Text: l.Text, Align: l.Align})
	}
	return out
}

// Bill finalises a Paying cart with a zero balance into a NormalSales
// tranlog.
func (f *Finaliser) Bill(ctx context.Context, c *cart.Cart) (*TransactionLog, error) {
	if c.Status != cart.StatusPaying {
		return nil, errors.InvalidOperation("cart must be in Paying state to bill")
	}
	if c.Sales.BalanceAmount != 0 {
		return nil, errors.BalanceGreaterThanZero()
	}

	transactionNo, err := AllocateTransactionNo(ctx, f.counters, c.TenantID, c.StoreCode, c.TerminalNo)
	if err != nil {
		return nil, err
	}
	receiptNo, err := AllocateReceiptNo(ctx, f.counters, c.TenantID, c.StoreCode, c.TerminalNo, f.settings.ReceiptNoStartValue, f.settings.ReceiptNoEndValue)
	if err != nil {
		return nil, err
	}

	t := f.buildFromCart(c, transactionNo, receiptNo, nil)
	f.applyStampDuty(c, &t.Sales)
	return f.commitAndPublish(ctx, c.TenantID, t)
}

// Void reverses an existing tranlog. The supplied payments must exactly
// match the original: every payment_code in payments must
// appear in T.Payments and the per-code sums must match exactly.
func (f *Finaliser) Void(ctx context.Context, original *TransactionLog, staff master.Staff, payments []cart.Payment) (*TransactionLog, error) {
	status, err := GetOrDefault(ctx, f.statusRepo, original.TenantID, original.StoreCode, original.TerminalNo, original.TransactionNo)
	if err != nil {
		return nil, err
	}
	if status.IsVoided {
		return nil, errors.AlreadyVoided()
	}
	if status.IsRefunded && original.TransactionType == cart.TransactionNormalSales {
		return nil, errors.AlreadyRefunded()
	}

	var newType cart.TransactionType
	switch original.TransactionType {
	case cart.TransactionNormalSales:
		newType = cart.TransactionVoidSales
	case cart.TransactionReturnSales:
		newType = cart.TransactionVoidReturn
	default:
		return nil, errors.InvalidOperation("only NormalSales or ReturnSales transactions can be voided")
	}

	if err := matchPayments(original.Payments, payments); err != nil {
		return nil, err
	}

	transactionNo, err := AllocateTransactionNo(ctx, f.counters, original.TenantID, original.StoreCode, original.TerminalNo)
	if err != nil {
		return nil, err
	}
	receiptNo, err := AllocateReceiptNo(ctx, f.counters, original.TenantID, original.StoreCode, original.TerminalNo, f.settings.ReceiptNoStartValue, f.settings.ReceiptNoEndValue)
	if err != nil {
		return nil, err
	}

	t := cloneForReversal(original, newType, transactionNo, receiptNo, staff, payments)
	result, err := f.commitAndPublish(ctx, original.TenantID, t)
	if err != nil {
		return nil, err
	}

	status.IsVoided = true
	voidNo := transactionNo
	status.VoidTransactionNo = &voidNo
	if err := f.statusRepo.Upsert(ctx, status); err != nil {
		return nil, err
	}

	if newType == cart.TransactionVoidReturn && original.Origin != nil {
		// Voiding a return resets the original sale's refunded flag.
		saleStatus, err := GetOrDefault(ctx, f.statusRepo, original.TenantID, original.StoreCode, original.TerminalNo, original.Origin.TransactionNo)
		if err == nil {
			saleStatus.IsRefunded = false
			saleStatus.ReturnTransactionNo = nil
			_ = f.statusRepo.Upsert(ctx, saleStatus)
		}
	}

	return result, nil
}

// Return creates a ReturnSales tranlog against a NormalSales original.
// Payments may differ from the original in composition, but must total
// the same amount.
func (f *Finaliser) Return(ctx context.Context, original *TransactionLog, staff master.Staff, payments []cart.Payment) (*TransactionLog, error) {
	if original.TransactionType != cart.TransactionNormalSales {
		return nil, errors.InvalidOperation("only NormalSales transactions can be returned")
	}

	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	if total != original.Sales.TotalAmountWithTax {
		return nil, errors.Validation("return payment total must equal the original transaction total")
	}

	transactionNo, err := AllocateTransactionNo(ctx, f.counters, original.TenantID, original.StoreCode, original.TerminalNo)
	if err != nil {
		return nil, err
	}
	receiptNo, err := AllocateReceiptNo(ctx, f.counters, original.TenantID, original.StoreCode, original.TerminalNo, f.settings.ReceiptNoStartValue, f.settings.ReceiptNoEndValue)
	if err != nil {
		return nil, err
	}

	t := cloneForReversal(original, cart.TransactionReturnSales, transactionNo, receiptNo, staff, payments)
	result, err := f.commitAndPublish(ctx, original.TenantID, t)
	if err != nil {
		return nil, err
	}

	status, err := GetOrDefault(ctx, f.statusRepo, original.TenantID, original.StoreCode, original.TerminalNo, original.TransactionNo)
	if err != nil {
		return nil, err
	}
	status.IsRefunded = true
	returnNo := transactionNo
	status.ReturnTransactionNo = &returnNo
	if err := f.statusRepo.Upsert(ctx, status); err != nil {
		return nil, err
	}

	return result, nil
}

func matchPayments(original, supplied []cart.Payment) error {
	originalSums := make(map[string]int64)
	for _, p := range original {
		originalSums[p.PaymentCode] += p.Amount
	}
	suppliedSums := make(map[string]int64)
	for _, p := range supplied {
		suppliedSums[p.PaymentCode] += p.Amount
	}
	if len(originalSums) != len(suppliedSums) {
		return errors.Validation("void payment list must exactly match the original transaction")
	}
	for code, amount := range originalSums {
		if suppliedSums[code] != amount {
			return errors.Validation("void payment list must exactly match the original transaction")
		}
	}
	return nil
}

func (f *Finaliser) buildFromCart(c *cart.Cart, transactionNo, receiptNo int64, origin *Origin) *TransactionLog {
	return &TransactionLog{
		TenantID:         c.TenantID,
		StoreCode:        c.StoreCode,
		TerminalNo:       c.TerminalNo,
		TransactionNo:    transactionNo,
		ReceiptNo:        receiptNo,
		TransactionType:  c.TransactionType,
		GenerateDateTime: time.Now().UTC(),
		BusinessDate:     c.BusinessDate,
		OpenCounter:      c.OpenCounter,
		BusinessCounter:  c.BusinessCounter,
		Staff:            c.Staff,
		LineItems:        c.LineItems,
		SubtotalDiscounts: c.SubtotalDiscounts,
		Payments:         c.Payments,
		Taxes:            c.Taxes,
		Sales:            c.Sales,
		Origin:           origin,
		AdditionalInfo: AdditionalInfo{
			InvoiceRegistrationNumber: f.settings.InvoiceRegistrationNumber,
			ReceiptHeaders:            convertReceiptLines(f.settings.ReceiptHeaders),
			ReceiptFooters:            convertReceiptLines(f.settings.ReceiptFooters),
		},
	}
}

func cloneForReversal(original *TransactionLog, newType cart.TransactionType, transactionNo, receiptNo int64, staff master.Staff, payments []cart.Payment) *TransactionLog {
	return &TransactionLog{
		TenantID:         original.TenantID,
		StoreCode:        original.StoreCode,
		TerminalNo:       original.TerminalNo,
		TransactionNo:    transactionNo,
		ReceiptNo:        receiptNo,
		TransactionType:  newType,
		GenerateDateTime: time.Now().UTC(),
		BusinessDate:     original.BusinessDate,
		OpenCounter:      original.OpenCounter,
		BusinessCounter:  original.BusinessCounter,
		Staff:            staff,
		LineItems:        original.LineItems,
		SubtotalDiscounts: original.SubtotalDiscounts,
		Payments:         payments,
		Taxes:            original.Taxes,
		Sales:            original.Sales,
		Origin:           &Origin{TransactionNo: original.TransactionNo, ReceiptNo: original.ReceiptNo},
		AdditionalInfo:   original.AdditionalInfo,
	}
}

// applyStampDuty computes stamp-duty applicability from the cash portion
// of payments and the tax-exclusive total.
func (f *Finaliser) applyStampDuty(c *cart.Cart, sales *cart.Sales) {
	var cashPortion int64
	for _, p := range c.Payments {
		if method, ok := c.Masters.Payments[p.PaymentCode]; ok && method.HandlerType == "cash" {
			cashPortion += p.Amount
		}
	}
	if amount, ok := f.settings.StampDutyFor(cashPortion, sales.TotalAmount); ok {
		sales.IsStampDutyApplied = true
		sales.StampDutyAmount = amount
	}
}

// commitAndPublish writes the tranlog, then its DeliveryStatus row as a
// separate write (the two do not share a database transaction), then
// publishes. If the DeliveryStatus write fails, the error is logged and the
// tranlog is still returned. A
// publish failure never fails the business response — the commit already
// happened, DeliveryStatus carries the truth, and the republish sweep
// will pick it up.
func (f *Finaliser) commitAndPublish(ctx context.Context, tenantID string, t *TransactionLog) (*TransactionLog, error) {
	t.ReceiptText, t.JournalText = f.composer.Compose(t)

	if err := f.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	txnNo := t.TransactionNo
	ds, err := f.tracker.CreatePending(ctx, tenantID, events.TopicTranlog, "tranlog", t, tranlogDestinations, &txnNo)
	if err != nil {
		f.logger.WithContext(ctx).WithError(err).Error("failed to create delivery status for tranlog")
		return t, nil
	}
	if err := f.tracker.Publish(ctx, ds); err != nil {
		f.logger.WithContext(ctx).WithError(err).WithField("transaction_no", t.TransactionNo).Warn("tranlog publish failed; left for republish sweep")
	}
	return t, nil
}
