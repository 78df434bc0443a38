package terminal

import "context"

// Repository persists the terminal registry and the two immutable log
// collections.
type Repository interface {
	Get(ctx context.Context, tenantID, storeCode string, terminalNo int) (*Terminal, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Terminal, error)
	Create(ctx context.Context, t *Terminal) error
	Update(ctx context.Context, t *Terminal) error
	Delete(ctx context.Context, tenantID, storeCode string, terminalNo int) error

	CreateCashInOutLog(ctx context.Context, log *CashInOutLog) error
	CountCashInOutLogs(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (count int, lastTimestamp int64, err error)

	CreateOpenCloseLog(ctx context.Context, log *OpenCloseLog) error
	GetLatestCloseLog(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (*OpenCloseLog, error)

	// SumCashInOut splits the session's CashInOutLog amounts into the
	// positive (in) and negative (out) totals the Report Service's `cash`
	// block needs.
	SumCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (cashIn, cashOut int64, err error)

	// ListByStore returns every registered terminal for a store, used by
	// the reconciliation gate when a report is requested store-wide
	// rather than for one terminal — the gate runs per-terminal and all
	// must pass.
	ListByStore(ctx context.Context, tenantID, storeCode string) ([]Terminal, error)
}

// CounterRepository provides the atomic counter increments the
// open-terminal flow needs (business_counter always, open_counter only
// when staying on the same business date).
type CounterRepository interface {
	NextValue(ctx context.Context, tenantID string, counterName string, storeCode string, terminalNo int) (int64, error)
}
