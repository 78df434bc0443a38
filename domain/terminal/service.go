package terminal

import (
	"context"
	"time"

	"github.com/kugelpos/transactional-core/domain/delivery"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// tranlogCounts is the shape the Terminal Service needs from the cart
// side's tranlog repository, kept narrow to avoid importing domain/tranlog
// for a single read at close time.
type tranlogCounts interface {
	CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (count int, lastNo int64, err error)
}

// Service implements the terminal lifecycle: open/close, cash in/out,
// sign-in/out.
type Service struct {
	repo     Repository
	counters CounterRepository
	tranlogs tranlogCounts
	tracker  *delivery.Tracker
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(repo Repository, counters CounterRepository, tranlogs tranlogCounts, tracker *delivery.Tracker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewFromEnv("terminal-service")
	}
	return &Service{repo: repo, counters: counters, tranlogs: tranlogs, tracker: tracker, logger: logger, now: time.Now}
}

// Create registers a terminal.
// Only the API key's digest is persisted; the plaintext lives with the
// terminal device.
func (s *Service) Create(ctx context.Context, tenantID, storeCode string, terminalNo int, description, apiKey string) (*Terminal, error) {
	t := &Terminal{
		TenantID:     tenantID,
		StoreCode:    storeCode,
		TerminalNo:   terminalNo,
		Description:  description,
		Status:       StatusIdle,
		FunctionMode: ModeMainMenu,
		APIKey:       HashAPIKey(apiKey),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID, storeCode string, terminalNo int) (*Terminal, error) {
	return s.repo.Get(ctx, tenantID, storeCode, terminalNo)
}

// GetByAPIKey resolves a presented plaintext key to its terminal via the
// stored digest.
func (s *Service) GetByAPIKey(ctx context.Context, apiKey string) (*Terminal, error) {
	return s.repo.GetByAPIKey(ctx, HashAPIKey(apiKey))
}

func (s *Service) Delete(ctx context.Context, tenantID, storeCode string, terminalNo int) error {
	return s.repo.Delete(ctx, tenantID, storeCode, terminalNo)
}

func (s *Service) UpdateDescription(ctx context.Context, tenantID, storeCode string, terminalNo int, description string) (*Terminal, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	t.Description = description
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateFunctionMode(ctx context.Context, tenantID, storeCode string, terminalNo int, mode FunctionMode) (*Terminal, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	t.FunctionMode = mode
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) SignIn(ctx context.Context, tenantID, storeCode string, terminalNo int, staff master.Staff) (*Terminal, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	t.Staff = staff
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) SignOut(ctx context.Context, tenantID, storeCode string, terminalNo int) (*Terminal, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	t.Staff = master.Staff{}
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Open opens the terminal for business.
func (s *Service) Open(ctx context.Context, tenantID, storeCode string, terminalNo int, initialAmount int64) (*Terminal, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusIdle && t.Status != StatusClosed {
		return nil, errors.TerminalAlreadyOpened()
	}
	if !t.SignedIn() {
		return nil, errors.TerminalNotSignedIn()
	}

	businessCounter, err := s.counters.NextValue(ctx, tenantID, "business_counter", storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	t.BusinessCounter = int(businessCounter)

	// The open counter is keyed per business date, so rolling to a new
	// date naturally restarts it at 1 while same-day reopens increment.
	today := s.now().UTC().Format("20060102")
	t.BusinessDate = today
	openCounter, err := s.counters.NextValue(ctx, tenantID, "open_counter:"+today, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	t.OpenCounter = int(openCounter)

	t.Status = StatusOpened
	t.FunctionMode = ModeMainMenu
	t.InitialAmount = &initialAmount
	t.PhysicalAmount = nil
	t.UpdatedAt = s.now().UTC()

	cashLog := &CashInOutLog{
		TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo,
		BusinessDate: t.BusinessDate, OpenCounter: t.OpenCounter,
		GenerateDateTime: t.UpdatedAt, Amount: initialAmount, Description: "Initial amount", Staff: t.Staff,
	}
	if err := s.repo.CreateCashInOutLog(ctx, cashLog); err != nil {
		return nil, err
	}
	openLog := &OpenCloseLog{
		TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo,
		BusinessDate: t.BusinessDate, OpenCounter: t.OpenCounter,
		Operation: OperationOpen, GenerateDateTime: t.UpdatedAt, Staff: t.Staff,
		InitialAmount: &initialAmount,
	}
	if err := s.repo.CreateOpenCloseLog(ctx, openLog); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.publishBoth(ctx, tenantID, cashLog, openLog)
	return t, nil
}

// CashInOut records a signed cash movement.
func (s *Service) CashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, amount int64, description string) (*CashInOutLog, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusOpened {
		return nil, errors.TerminalStatusError("terminal must be opened for cash in/out")
	}
	if !t.SignedIn() {
		return nil, errors.TerminalNotSignedIn()
	}

	log := &CashInOutLog{
		TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo,
		BusinessDate: t.BusinessDate, OpenCounter: t.OpenCounter,
		GenerateDateTime: s.now().UTC(), Amount: amount, Description: description, Staff: t.Staff,
	}
	if err := s.repo.CreateCashInOutLog(ctx, log); err != nil {
		return nil, err
	}

	ds, err := s.tracker.CreatePending(ctx, tenantID, events.TopicCashLog, events.EventTypeCashInOut, log, []string{"report", "journal"}, nil)
	if err == nil {
		_ = s.tracker.Publish(ctx, ds)
	}
	return log, nil
}

// Close closes the terminal, snapshotting reconciliation counts the
// Report Service's gate will later check against.
func (s *Service) Close(ctx context.Context, tenantID, storeCode string, terminalNo int, physicalAmount int64) (*OpenCloseLog, error) {
	t, err := s.repo.Get(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusOpened {
		return nil, errors.TerminalStatusError("terminal must be opened to close")
	}

	cashCount, cashLastTS, err := s.repo.CountCashInOutLogs(ctx, tenantID, storeCode, terminalNo, t.OpenCounter, t.BusinessDate)
	if err != nil {
		return nil, err
	}
	tranCount, tranLastNo, err := s.tranlogs.CountAndLastNo(ctx, tenantID, storeCode, terminalNo, t.BusinessDate, t.OpenCounter)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	closeLog := &OpenCloseLog{
		TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo,
		BusinessDate: t.BusinessDate, OpenCounter: t.OpenCounter,
		Operation: OperationClose, GenerateDateTime: now, Staff: t.Staff,
		PhysicalAmount:        &physicalAmount,
		CartTransactionCount:  tranCount,
		CartTransactionLastNo: tranLastNo,
		CashInOutCount:        cashCount,
		CashInOutLastDateTime: time.Unix(cashLastTS, 0).UTC(),
	}
	if err := s.repo.CreateOpenCloseLog(ctx, closeLog); err != nil {
		return nil, err
	}

	t.Status = StatusClosed
	t.PhysicalAmount = &physicalAmount
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	ds, err := s.tracker.CreatePending(ctx, tenantID, events.TopicOpenCloseLog, events.EventTypeClose, closeLog, []string{"report", "journal"}, nil)
	if err == nil {
		_ = s.tracker.Publish(ctx, ds)
	}
	return closeLog, nil
}

func (s *Service) publishBoth(ctx context.Context, tenantID string, cashLog *CashInOutLog, openLog *OpenCloseLog) {
	if ds, err := s.tracker.CreatePending(ctx, tenantID, events.TopicOpenCloseLog, events.EventTypeOpen, openLog, []string{"report", "journal"}, nil); err == nil {
		_ = s.tracker.Publish(ctx, ds)
	}
	if ds, err := s.tracker.CreatePending(ctx, tenantID, events.TopicCashLog, events.EventTypeCashInOut, cashLog, []string{"report", "journal"}, nil); err == nil {
		_ = s.tracker.Publish(ctx, ds)
	}
}
