package tranlog

import (
	"context"
	"testing"

	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/config"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranlogRepo struct {
	rows []TransactionLog
}

func (f *fakeTranlogRepo) Create(ctx context.Context, t *TransactionLog) error {
	f.rows = append(f.rows, *t)
	return nil
}

func (f *fakeTranlogRepo) Get(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionNo int64) (*TransactionLog, error) {
	for i := range f.rows {
		if f.rows[i].TransactionNo == transactionNo {
			row := f.rows[i]
			return &row, nil
		}
	}
	return nil, errors.NotFound("tranlog", "")
}

func (f *fakeTranlogRepo) List(ctx context.Context, filter ListFilter) ([]TransactionLog, error) {
	return f.rows, nil
}

func (f *fakeTranlogRepo) CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int, int64, error) {
	var last int64
	for _, row := range f.rows {
		if row.TransactionNo > last {
			last = row.TransactionNo
		}
	}
	return len(f.rows), last, nil
}

type fakeStatusRepo struct {
	rows map[int64]*TransactionStatus
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{rows: map[int64]*TransactionStatus{}}
}

func (f *fakeStatusRepo) Get(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionNo int64) (*TransactionStatus, error) {
	status, ok := f.rows[transactionNo]
	if !ok {
		return nil, errors.NotFound("transaction status", "")
	}
	cp := *status
	return &cp, nil
}

func (f *fakeStatusRepo) Upsert(ctx context.Context, status *TransactionStatus) error {
	cp := *status
	f.rows[status.TransactionNo] = &cp
	return nil
}

type fakeDeliveryRepo struct {
	rows map[string]*delivery.DeliveryStatus
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{rows: map[string]*delivery.DeliveryStatus{}}
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *delivery.DeliveryStatus) error {
	cp := *d
	f.rows[d.EventID] = &cp
	return nil
}

func (f *fakeDeliveryRepo) Get(ctx context.Context, eventID string) (*delivery.DeliveryStatus, error) {
	d, ok := f.rows[eventID]
	if !ok {
		return nil, errors.NotFound("delivery status", eventID)
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDeliveryRepo) Update(ctx context.Context, d *delivery.DeliveryStatus) error {
	cp := *d
	f.rows[d.EventID] = &cp
	return nil
}

func (f *fakeDeliveryRepo) ListNotDelivered(ctx context.Context, createdAfterUnix int64) ([]delivery.DeliveryStatus, error) {
	var out []delivery.DeliveryStatus
	for _, d := range f.rows {
		if d.OverallStatus != delivery.OverallDelivered {
			out = append(out, *d)
		}
	}
	return out, nil
}

type fixture struct {
	finaliser *Finaliser
	tranlogs  *fakeTranlogRepo
	statuses  *fakeStatusRepo
	delivered *fakeDeliveryRepo
	publisher *events.InMemoryPublisher
}

func newFixture(t *testing.T, settings config.Settings) *fixture {
	t.Helper()
	tranlogs := &fakeTranlogRepo{}
	statuses := newFakeStatusRepo()
	delivered := newFakeDeliveryRepo()
	publisher := events.NewInMemoryPublisher()
	tracker := delivery.NewTracker(delivered, publisher, nil, nil, delivery.SweepConfig{})
	return &fixture{
		finaliser: NewFinaliser(tranlogs, statuses, newFakeCounters(), tracker, nil, settings, nil),
		tranlogs:  tranlogs,
		statuses:  statuses,
		delivered: delivered,
		publisher: publisher,
	}
}

func payingCart(total int64, payments []cart.Payment) *cart.Cart {
	c := &cart.Cart{
		CartID:          "cart-1",
		TenantID:        "T001",
		StoreCode:       "S001",
		TerminalNo:      1,
		Status:          cart.StatusPaying,
		TransactionType: cart.TransactionNormalSales,
		Staff:           master.Staff{ID: "S001", Name: "Staff One"},
		BusinessDate:    "20260801",
		OpenCounter:     1,
		BusinessCounter: 5,
		Payments:        payments,
		Masters: cart.Masters{Payments: map[string]master.PaymentMethod{
			"01": {PaymentCode: "01", Description: "Cash", HandlerType: "cash", CanChange: true},
			"02": {PaymentCode: "02", Description: "Credit", HandlerType: "cashless"},
		}},
	}
	c.Sales = cart.Sales{
		TotalAmount:        total,
		TotalAmountWithTax: total,
		BalanceAmount:      0,
	}
	return c
}

func TestBill_AllocatesNumbersAndTracksDelivery(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	c := payingCart(220, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 220}})

	result, err := f.finaliser.Bill(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TransactionNo)
	assert.Equal(t, int64(1), result.ReceiptNo)
	assert.NotEmpty(t, result.ReceiptText)
	assert.NotEmpty(t, result.JournalText)
	require.Len(t, f.tranlogs.rows, 1)

	require.Len(t, f.delivered.rows, 1)
	for _, ds := range f.delivered.rows {
		assert.Equal(t, delivery.OverallPublished, ds.OverallStatus)
		require.Len(t, ds.Services, 3)
		names := map[string]bool{}
		for _, s := range ds.Services {
			names[s.Name] = true
			assert.Equal(t, delivery.ServicePending, s.Status)
		}
		assert.True(t, names["report"] && names["journal"] && names["stock"])
		require.NotNil(t, ds.TransactionNo)
		assert.Equal(t, int64(1), *ds.TransactionNo)
	}
	require.Len(t, f.publisher.Published, 1)
	assert.NotEmpty(t, f.publisher.Published[0].EventID)
}

func TestBill_RejectsNonZeroBalance(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	c := payingCart(220, nil)
	c.Sales.BalanceAmount = 220

	_, err := f.finaliser.Bill(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBalanceGreaterThanZero, errors.GetServiceError(err).Code)
}

func TestBill_PublishFailureStillCommits(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	f.publisher.FailNext = true
	c := payingCart(220, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 220}})

	result, err := f.finaliser.Bill(context.Background(), c)
	require.NoError(t, err, "a publish failure never fails the business response")
	require.NotNil(t, result)

	for _, ds := range f.delivered.rows {
		assert.Equal(t, delivery.OverallFailed, ds.OverallStatus, "delivery status carries the truth")
	}
}

// Cash portion and tax-exclusive total both
// at 50000 hit the [{50000, 200}] stamp duty tier.
func TestBill_StampDutyThreshold(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StampDutyMaster = []config.StampDutyTier{{TargetAmount: 50000, StampDutyAmount: 200}}
	f := newFixture(t, settings)

	c := payingCart(50000, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 50000}})
	result, err := f.finaliser.Bill(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, result.Sales.IsStampDutyApplied)
	assert.Equal(t, int64(200), result.Sales.StampDutyAmount)
}

func TestBill_NoStampDutyWhenCashPortionBelowThreshold(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StampDutyMaster = []config.StampDutyTier{{TargetAmount: 50000, StampDutyAmount: 200}}
	f := newFixture(t, settings)

	// Mostly credit: cash portion 10000 stays below the tier.
	c := payingCart(50000, []cart.Payment{
		{PaymentNo: 1, PaymentCode: "02", Amount: 40000},
		{PaymentNo: 2, PaymentCode: "01", Amount: 10000},
	})
	result, err := f.finaliser.Bill(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, result.Sales.IsStampDutyApplied)
}

func billOriginal(t *testing.T, f *fixture, payments []cart.Payment) *TransactionLog {
	t.Helper()
	original, err := f.finaliser.Bill(context.Background(), payingCart(330, payments))
	require.NoError(t, err)
	return original
}

func TestVoid_ExactPaymentMatchRequired(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	original := billOriginal(t, f, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 330}})
	staff := master.Staff{ID: "S002"}

	_, err := f.finaliser.Void(context.Background(), original, staff, []cart.Payment{{PaymentCode: "02", Amount: 330}})
	require.Error(t, err, "different payment code must be rejected")

	_, err = f.finaliser.Void(context.Background(), original, staff, []cart.Payment{{PaymentCode: "01", Amount: 300}})
	require.Error(t, err, "different per-code sum must be rejected")

	voided, err := f.finaliser.Void(context.Background(), original, staff, []cart.Payment{{PaymentCode: "01", Amount: 330}})
	require.NoError(t, err)
	assert.Equal(t, cart.TransactionVoidSales, voided.TransactionType)
	require.NotNil(t, voided.Origin)
	assert.Equal(t, original.TransactionNo, voided.Origin.TransactionNo)

	status, err := f.statuses.Get(context.Background(), "T001", "S001", 1, original.TransactionNo)
	require.NoError(t, err)
	assert.True(t, status.IsVoided)

	_, err = f.finaliser.Void(context.Background(), original, staff, []cart.Payment{{PaymentCode: "01", Amount: 330}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlreadyVoided, errors.GetServiceError(err).Code)
}

func TestReturn_OnlyNormalSalesTotalMustMatch(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	original := billOriginal(t, f, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 330}})
	staff := master.Staff{ID: "S002"}

	_, err := f.finaliser.Return(context.Background(), original, staff, []cart.Payment{{PaymentCode: "02", Amount: 300}})
	require.Error(t, err, "total mismatch must be rejected")

	// Payment composition may differ from the original as long as totals match.
	returned, err := f.finaliser.Return(context.Background(), original, staff, []cart.Payment{{PaymentCode: "02", Amount: 330}})
	require.NoError(t, err)
	assert.Equal(t, cart.TransactionReturnSales, returned.TransactionType)

	status, err := f.statuses.Get(context.Background(), "T001", "S001", 1, original.TransactionNo)
	require.NoError(t, err)
	assert.True(t, status.IsRefunded)
	require.NotNil(t, status.ReturnTransactionNo)
	assert.Equal(t, returned.TransactionNo, *status.ReturnTransactionNo)

	_, err = f.finaliser.Return(context.Background(), returned, staff, []cart.Payment{{PaymentCode: "02", Amount: 330}})
	require.Error(t, err, "a return of a return is forbidden")
}

// Return S1 -> R1, then void R1 -> VR1 resets S1's
// refunded flag and marks R1 voided.
func TestVoidReturn_ResetsOriginalRefundStatus(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	staff := master.Staff{ID: "S002"}

	s1 := billOriginal(t, f, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 330}})
	r1, err := f.finaliser.Return(context.Background(), s1, staff, []cart.Payment{{PaymentCode: "01", Amount: 330}})
	require.NoError(t, err)

	s1Status, err := f.statuses.Get(context.Background(), "T001", "S001", 1, s1.TransactionNo)
	require.NoError(t, err)
	require.True(t, s1Status.IsRefunded)

	vr1, err := f.finaliser.Void(context.Background(), r1, staff, []cart.Payment{{PaymentCode: "01", Amount: 330}})
	require.NoError(t, err)
	assert.Equal(t, cart.TransactionVoidReturn, vr1.TransactionType)

	s1Status, err = f.statuses.Get(context.Background(), "T001", "S001", 1, s1.TransactionNo)
	require.NoError(t, err)
	assert.False(t, s1Status.IsRefunded, "voiding the return must reset the original's refunded flag")
	assert.Nil(t, s1Status.ReturnTransactionNo)

	r1Status, err := f.statuses.Get(context.Background(), "T001", "S001", 1, r1.TransactionNo)
	require.NoError(t, err)
	assert.True(t, r1Status.IsVoided)
}

func TestVoid_RefundedNormalSaleCannotBeVoided(t *testing.T) {
	f := newFixture(t, config.DefaultSettings())
	staff := master.Staff{ID: "S002"}

	s1 := billOriginal(t, f, []cart.Payment{{PaymentNo: 1, PaymentCode: "01", Amount: 330}})
	_, err := f.finaliser.Return(context.Background(), s1, staff, []cart.Payment{{PaymentCode: "01", Amount: 330}})
	require.NoError(t, err)

	_, err = f.finaliser.Void(context.Background(), s1, staff, []cart.Payment{{PaymentCode: "01", Amount: 330}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlreadyRefunded, errors.GetServiceError(err).Code)
}
