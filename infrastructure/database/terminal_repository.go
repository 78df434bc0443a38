package database

import (
	"context"
	"fmt"

	"github.com/kugelpos/transactional-core/domain/terminal"
)

const terminalsTable = "terminals"

// TerminalRepository is the Postgres-backed domain/terminal.Repository:
// the terminal registry as a JSONB document plus the two immutable log
// collections and the reconciliation-facing summary queries.
type TerminalRepository struct {
	repo *Repository
}

func NewTerminalRepository(repo *Repository) *TerminalRepository {
	return &TerminalRepository{repo: repo}
}

func (r *TerminalRepository) Get(ctx context.Context, tenantID, storeCode string, terminalNo int) (*terminal.Terminal, error) {
	id := (terminal.Terminal{TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo}).ID()
	return GenericGetByID[terminal.Terminal](ctx, r.repo, terminalsTable, tenantID, id)
}

func (r *TerminalRepository) GetByAPIKey(ctx context.Context, apiKey string) (*terminal.Terminal, error) {
	query := `SELECT data FROM terminals WHERE data->>'api_key' = $1 LIMIT 1`
	var data []byte
	err := r.repo.db.QueryRowxContext(ctx, query, apiKey).Scan(&data)
	if scanNoRows(err) {
		return nil, NewNotFoundError(terminalsTable, apiKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get terminal by api key: %v", ErrDatabaseError, err)
	}
	var t terminal.Terminal
	if err := unmarshalDoc(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TerminalRepository) Create(ctx context.Context, t *terminal.Terminal) error {
	return GenericCreate(ctx, r.repo, terminalsTable, t.TenantID, t.ID(), t, nil)
}

func (r *TerminalRepository) Update(ctx context.Context, t *terminal.Terminal) error {
	return GenericUpdate(ctx, r.repo, terminalsTable, t.TenantID, t.ID(), t)
}

func (r *TerminalRepository) Delete(ctx context.Context, tenantID, storeCode string, terminalNo int) error {
	id := (terminal.Terminal{TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo}).ID()
	return GenericDelete(ctx, r.repo, terminalsTable, tenantID, id)
}

func (r *TerminalRepository) CreateCashInOutLog(ctx context.Context, log *terminal.CashInOutLog) error {
	id := fmt.Sprintf("%s-%s-%d-%s-%d-%d", log.TenantID, log.StoreCode, log.TerminalNo, log.BusinessDate, log.OpenCounter, log.GenerateDateTime.UnixNano())
	return GenericCreate(ctx, r.repo, "cash_in_out_logs", log.TenantID, id, log, nil)
}

func (r *TerminalRepository) CountCashInOutLogs(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (int, int64, error) {
	query := `
		SELECT count(*), coalesce(max(extract(epoch from (data->>'generate_date_time')::timestamptz)), 0)
		FROM cash_in_out_logs
		WHERE tenant_id = $1 AND data->>'store_code' = $2 AND (data->>'terminal_no')::int = $3
		  AND (data->>'open_counter')::int = $4 AND data->>'business_date' = $5`
	var count int
	var lastTimestamp float64
	err := r.repo.db.QueryRowxContext(ctx, query, tenantID, storeCode, terminalNo, openCounter, businessDate).Scan(&count, &lastTimestamp)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: count cash in/out logs: %v", ErrDatabaseError, err)
	}
	return count, int64(lastTimestamp), nil
}

func (r *TerminalRepository) CreateOpenCloseLog(ctx context.Context, log *terminal.OpenCloseLog) error {
	id := fmt.Sprintf("%s-%s-%d-%s-%d-%s", log.TenantID, log.StoreCode, log.TerminalNo, log.BusinessDate, log.OpenCounter, log.Operation)
	return GenericCreate(ctx, r.repo, "open_close_logs", log.TenantID, id, log, nil)
}

// GetLatestCloseLog returns the most recent close row for the session. A
// negative openCounter matches any session on the business date, used by
// store-wide daily reports where the caller has no single session key.
func (r *TerminalRepository) GetLatestCloseLog(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (*terminal.OpenCloseLog, error) {
	query := `
		SELECT data FROM open_close_logs
		WHERE tenant_id = $1 AND data->>'store_code' = $2 AND (data->>'terminal_no')::int = $3
		  AND ($4 < 0 OR (data->>'open_counter')::int = $4) AND data->>'business_date' = $5 AND data->>'operation' = 'close'
		ORDER BY (data->>'generate_date_time') DESC LIMIT 1`
	var data []byte
	err := r.repo.db.QueryRowxContext(ctx, query, tenantID, storeCode, terminalNo, openCounter, businessDate).Scan(&data)
	if scanNoRows(err) {
		return nil, NewNotFoundError("open_close_logs", fmt.Sprintf("%s/%s/%d/%d/%s", tenantID, storeCode, terminalNo, openCounter, businessDate))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get latest close log: %v", ErrDatabaseError, err)
	}
	var log terminal.OpenCloseLog
	if err := unmarshalDoc(data, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *TerminalRepository) SumCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int64, int64, error) {
	query := `
		SELECT
			coalesce(sum((data->>'amount')::bigint) FILTER (WHERE (data->>'amount')::bigint > 0), 0),
			coalesce(sum((data->>'amount')::bigint) FILTER (WHERE (data->>'amount')::bigint < 0), 0)
		FROM cash_in_out_logs
		WHERE tenant_id = $1 AND data->>'store_code' = $2 AND (data->>'terminal_no')::int = $3
		  AND data->>'business_date' = $4 AND (data->>'open_counter')::int = $5`
	var cashIn, cashOut int64
	err := r.repo.db.QueryRowxContext(ctx, query, tenantID, storeCode, terminalNo, businessDate, openCounter).Scan(&cashIn, &cashOut)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sum cash in/out: %v", ErrDatabaseError, err)
	}
	return cashIn, cashOut, nil
}

func (r *TerminalRepository) ListByStore(ctx context.Context, tenantID, storeCode string) ([]terminal.Terminal, error) {
	return GenericListByField[terminal.Terminal](ctx, r.repo, terminalsTable, tenantID, "store_code", storeCode)
}

// TerminalCounterRepository adapts the shared transaction_counters table to
// domain/terminal.CounterRepository's plain-string-name signature, used by
// the terminal service's business_counter/open_counter increments.
type TerminalCounterRepository struct {
	repo *Repository
}

func NewTerminalCounterRepository(repo *Repository) *TerminalCounterRepository {
	return &TerminalCounterRepository{repo: repo}
}

func (r *TerminalCounterRepository) NextValue(ctx context.Context, tenantID string, counterName string, storeCode string, terminalNo int) (int64, error) {
	return r.repo.NextCounterValue(ctx, tenantID, counterName, storeCode, terminalNo)
}
