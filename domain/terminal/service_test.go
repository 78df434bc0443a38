package terminal

import (
	"context"
	"testing"
	"time"

	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTerminalRepo struct {
	terminals map[string]*Terminal
	cashLogs  []CashInOutLog
	openClose []OpenCloseLog
}

func newFakeTerminalRepo() *fakeTerminalRepo {
	return &fakeTerminalRepo{terminals: map[string]*Terminal{}}
}

func (f *fakeTerminalRepo) Get(ctx context.Context, tenantID, storeCode string, terminalNo int) (*Terminal, error) {
	t, ok := f.terminals[(Terminal{TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo}).ID()]
	if !ok {
		return nil, errors.NotFound("terminal", "")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTerminalRepo) GetByAPIKey(ctx context.Context, apiKeyHash string) (*Terminal, error) {
	for _, t := range f.terminals {
		if t.APIKey == apiKeyHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, errors.NotFound("terminal", "")
}

func (f *fakeTerminalRepo) Create(ctx context.Context, t *Terminal) error {
	if _, exists := f.terminals[t.ID()]; exists {
		return errors.DuplicateKey("terminal", t.ID())
	}
	cp := *t
	f.terminals[t.ID()] = &cp
	return nil
}

func (f *fakeTerminalRepo) Update(ctx context.Context, t *Terminal) error {
	cp := *t
	f.terminals[t.ID()] = &cp
	return nil
}

func (f *fakeTerminalRepo) Delete(ctx context.Context, tenantID, storeCode string, terminalNo int) error {
	delete(f.terminals, (Terminal{TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo}).ID())
	return nil
}

func (f *fakeTerminalRepo) CreateCashInOutLog(ctx context.Context, log *CashInOutLog) error {
	f.cashLogs = append(f.cashLogs, *log)
	return nil
}

func (f *fakeTerminalRepo) CountCashInOutLogs(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (int, int64, error) {
	count := 0
	var last int64
	for _, log := range f.cashLogs {
		if log.OpenCounter == openCounter && log.BusinessDate == businessDate {
			count++
			if ts := log.GenerateDateTime.Unix(); ts > last {
				last = ts
			}
		}
	}
	return count, last, nil
}

func (f *fakeTerminalRepo) CreateOpenCloseLog(ctx context.Context, log *OpenCloseLog) error {
	f.openClose = append(f.openClose, *log)
	return nil
}

func (f *fakeTerminalRepo) GetLatestCloseLog(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (*OpenCloseLog, error) {
	for i := len(f.openClose) - 1; i >= 0; i-- {
		if f.openClose[i].Operation == OperationClose {
			cp := f.openClose[i]
			return &cp, nil
		}
	}
	return nil, errors.NotFound("close log", "")
}

func (f *fakeTerminalRepo) SumCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int64, int64, error) {
	var in, out int64
	for _, log := range f.cashLogs {
		if log.Amount > 0 {
			in += log.Amount
		} else {
			out += log.Amount
		}
	}
	return in, out, nil
}

func (f *fakeTerminalRepo) ListByStore(ctx context.Context, tenantID, storeCode string) ([]Terminal, error) {
	var list []Terminal
	for _, t := range f.terminals {
		if t.TenantID == tenantID && t.StoreCode == storeCode {
			list = append(list, *t)
		}
	}
	return list, nil
}

type fakeTerminalCounters struct {
	values map[string]int64
}

func (f *fakeTerminalCounters) NextValue(ctx context.Context, tenantID string, counterName string, storeCode string, terminalNo int) (int64, error) {
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[counterName]++
	return f.values[counterName], nil
}

type fakeTranlogCounts struct {
	count  int
	lastNo int64
}

func (f *fakeTranlogCounts) CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int, int64, error) {
	return f.count, f.lastNo, nil
}

type memoryDeliveryRepo struct {
	rows map[string]*delivery.DeliveryStatus
}

func (m *memoryDeliveryRepo) Create(ctx context.Context, d *delivery.DeliveryStatus) error {
	if m.rows == nil {
		m.rows = map[string]*delivery.DeliveryStatus{}
	}
	cp := *d
	m.rows[d.EventID] = &cp
	return nil
}

func (m *memoryDeliveryRepo) Get(ctx context.Context, eventID string) (*delivery.DeliveryStatus, error) {
	d, ok := m.rows[eventID]
	if !ok {
		return nil, errors.NotFound("delivery status", eventID)
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDeliveryRepo) Update(ctx context.Context, d *delivery.DeliveryStatus) error {
	cp := *d
	m.rows[d.EventID] = &cp
	return nil
}

func (m *memoryDeliveryRepo) ListNotDelivered(ctx context.Context, createdAfterUnix int64) ([]delivery.DeliveryStatus, error) {
	return nil, nil
}

type terminalFixture struct {
	svc       *Service
	repo      *fakeTerminalRepo
	tranlogs  *fakeTranlogCounts
	delivered *memoryDeliveryRepo
	publisher *events.InMemoryPublisher
	now       time.Time
}

func newTerminalFixture(t *testing.T) *terminalFixture {
	t.Helper()
	repo := newFakeTerminalRepo()
	tranlogs := &fakeTranlogCounts{}
	delivered := &memoryDeliveryRepo{}
	publisher := events.NewInMemoryPublisher()
	tracker := delivery.NewTracker(delivered, publisher, nil, nil, delivery.SweepConfig{})
	svc := NewService(repo, &fakeTerminalCounters{}, tranlogs, tracker, nil)

	f := &terminalFixture{svc: svc, repo: repo, tranlogs: tranlogs, delivered: delivered, publisher: publisher, now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	return f
}

func (f *terminalFixture) createSignedIn(t *testing.T) *Terminal {
	t.Helper()
	_, err := f.svc.Create(context.Background(), "T001", "S001", 1, "front register", "secret-key")
	require.NoError(t, err)
	term, err := f.svc.SignIn(context.Background(), "T001", "S001", 1, master.Staff{ID: "S001", Name: "Staff One"})
	require.NoError(t, err)
	return term
}

func TestService_CreateStoresKeyDigestOnly(t *testing.T) {
	f := newTerminalFixture(t)
	term, err := f.svc.Create(context.Background(), "T001", "S001", 1, "front register", "secret-key")
	require.NoError(t, err)
	assert.NotEqual(t, "secret-key", term.APIKey)
	assert.Equal(t, HashAPIKey("secret-key"), term.APIKey)

	resolved, err := f.svc.GetByAPIKey(context.Background(), "secret-key")
	require.NoError(t, err)
	assert.Equal(t, term.ID(), resolved.ID())

	_, err = f.svc.GetByAPIKey(context.Background(), "wrong-key")
	require.Error(t, err)
}

func TestService_OpenRollsBusinessDateAndWritesLogs(t *testing.T) {
	f := newTerminalFixture(t)
	f.createSignedIn(t)

	term, err := f.svc.Open(context.Background(), "T001", "S001", 1, 500000)
	require.NoError(t, err)
	assert.Equal(t, StatusOpened, term.Status)
	assert.Equal(t, "20260801", term.BusinessDate)
	assert.Equal(t, 1, term.OpenCounter)
	assert.Equal(t, 1, term.BusinessCounter)
	require.NotNil(t, term.InitialAmount)
	assert.Equal(t, int64(500000), *term.InitialAmount)

	require.Len(t, f.repo.cashLogs, 1)
	assert.Equal(t, int64(500000), f.repo.cashLogs[0].Amount)
	assert.Equal(t, "Initial amount", f.repo.cashLogs[0].Description)

	require.Len(t, f.repo.openClose, 1)
	assert.Equal(t, OperationOpen, f.repo.openClose[0].Operation)

	// One DeliveryStatus per published log (open + initial cash).
	assert.Len(t, f.delivered.rows, 2)
	assert.Len(t, f.publisher.Published, 2)
}

func TestService_OpenSameDayIncrementsOpenCounter(t *testing.T) {
	f := newTerminalFixture(t)
	f.createSignedIn(t)

	term, err := f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)
	require.Equal(t, 1, term.OpenCounter)

	_, err = f.svc.Close(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)

	term, err = f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, term.OpenCounter, "same business date increments open_counter")
	assert.Equal(t, 2, term.BusinessCounter)
}

func TestService_OpenNewDayResetsOpenCounter(t *testing.T) {
	f := newTerminalFixture(t)
	f.createSignedIn(t)

	term, err := f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)
	require.Equal(t, "20260801", term.BusinessDate)

	_, err = f.svc.Close(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	term, err = f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, "20260802", term.BusinessDate)
	assert.Equal(t, 1, term.OpenCounter, "a new business date starts open_counter at 1")
}

func TestService_OpenPreconditions(t *testing.T) {
	f := newTerminalFixture(t)
	_, err := f.svc.Create(context.Background(), "T001", "S001", 1, "", "key")
	require.NoError(t, err)

	_, err = f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.Error(t, err, "not signed in")

	_, err = f.svc.SignIn(context.Background(), "T001", "S001", 1, master.Staff{ID: "S001", Name: "Staff One"})
	require.NoError(t, err)
	_, err = f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)

	_, err = f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.Error(t, err, "already opened")
}

func TestService_CashInOutRequiresOpenedTerminal(t *testing.T) {
	f := newTerminalFixture(t)
	f.createSignedIn(t)

	_, err := f.svc.CashInOut(context.Background(), "T001", "S001", 1, 1000, "float top-up")
	require.Error(t, err)

	_, err = f.svc.Open(context.Background(), "T001", "S001", 1, 100)
	require.NoError(t, err)

	log, err := f.svc.CashInOut(context.Background(), "T001", "S001", 1, -500, "bank drop")
	require.NoError(t, err)
	assert.Equal(t, int64(-500), log.Amount)
}

func TestService_CloseSnapshotsReconciliationCounts(t *testing.T) {
	f := newTerminalFixture(t)
	f.createSignedIn(t)

	_, err := f.svc.Open(context.Background(), "T001", "S001", 1, 500000)
	require.NoError(t, err)
	_, err = f.svc.CashInOut(context.Background(), "T001", "S001", 1, 2000, "till adjustment")
	require.NoError(t, err)

	f.tranlogs.count = 7
	f.tranlogs.lastNo = 42

	closeLog, err := f.svc.Close(context.Background(), "T001", "S001", 1, 501500)
	require.NoError(t, err)
	assert.Equal(t, OperationClose, closeLog.Operation)
	assert.Equal(t, 7, closeLog.CartTransactionCount)
	assert.Equal(t, int64(42), closeLog.CartTransactionLastNo)
	assert.Equal(t, 2, closeLog.CashInOutCount, "initial amount plus one movement")
	require.NotNil(t, closeLog.PhysicalAmount)
	assert.Equal(t, int64(501500), *closeLog.PhysicalAmount)

	term, err := f.svc.Get(context.Background(), "T001", "S001", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, term.Status)

	_, err = f.svc.Close(context.Background(), "T001", "S001", 1, 0)
	require.Error(t, err, "closing a closed terminal is rejected")
}
