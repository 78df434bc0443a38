package database

import (
	"context"
	"fmt"

	"github.com/kugelpos/transactional-core/domain/tranlog"
)

const tranlogsTable = "tranlogs"

// TranlogRepository is the Postgres-backed domain/tranlog.Repository: one
// JSONB document per transaction, written once and never updated, plus
// the CountAndLastNo query the terminal close snapshot and report gate
// both need.
type TranlogRepository struct {
	repo *Repository
}

func NewTranlogRepository(repo *Repository) *TranlogRepository {
	return &TranlogRepository{repo: repo}
}

func (r *TranlogRepository) Create(ctx context.Context, t *tranlog.TransactionLog) error {
	return GenericCreate(ctx, r.repo, tranlogsTable, t.TenantID, t.Key(), t, nil)
}

func (r *TranlogRepository) Get(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionNo int64) (*tranlog.TransactionLog, error) {
	key := (&tranlog.TransactionLog{TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo, TransactionNo: transactionNo}).Key()
	return GenericGetByID[tranlog.TransactionLog](ctx, r.repo, tranlogsTable, tenantID, key)
}

func (r *TranlogRepository) List(ctx context.Context, filter tranlog.ListFilter) ([]tranlog.TransactionLog, error) {
	query, args := buildTranlogListQuery(filter)
	return scanDocRows[tranlog.TransactionLog](ctx, r.repo.db, query, args...)
}

func (r *TranlogRepository) CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int, int64, error) {
	query := `
		SELECT count(*), coalesce(max((data->>'transaction_no')::bigint), 0)
		FROM tranlogs
		WHERE tenant_id = $1
		  AND data->>'store_code' = $2
		  AND (data->>'terminal_no')::int = $3
		  AND data->>'business_date' = $4
		  AND (data->>'open_counter')::int = $5`

	var count int
	var lastNo int64
	err := r.repo.db.QueryRowxContext(ctx, query, tenantID, storeCode, terminalNo, businessDate, openCounter).Scan(&count, &lastNo)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: count tranlogs: %v", ErrDatabaseError, err)
	}
	return count, lastNo, nil
}

func buildTranlogListQuery(filter tranlog.ListFilter) (string, []any) {
	query := `SELECT data FROM tranlogs WHERE tenant_id = $1 AND data->>'store_code' = $2`
	args := []any{filter.TenantID, filter.StoreCode}

	if filter.TerminalNo != nil {
		args = append(args, *filter.TerminalNo)
		query += fmt.Sprintf(" AND (data->>'terminal_no')::int = $%d", len(args))
	}
	if filter.BusinessDate != "" {
		args = append(args, filter.BusinessDate)
		query += fmt.Sprintf(" AND data->>'business_date' = $%d", len(args))
	}
	if filter.FromDate != "" {
		args = append(args, filter.FromDate)
		query += fmt.Sprintf(" AND data->>'business_date' >= $%d", len(args))
	}
	if filter.ToDate != "" {
		args = append(args, filter.ToDate)
		query += fmt.Sprintf(" AND data->>'business_date' <= $%d", len(args))
	}
	if filter.OpenCounter != nil {
		args = append(args, *filter.OpenCounter)
		query += fmt.Sprintf(" AND (data->>'open_counter')::int = $%d", len(args))
	}
	if filter.ExcludeCancelled {
		query += " AND coalesce((data->'sales'->>'is_cancelled')::boolean, false) = false"
	}
	query += " ORDER BY (data->>'transaction_no')::bigint"
	return query, args
}

// TranlogStatusRepository is the Postgres-backed domain/tranlog.StatusRepository.
// TransactionStatus is small and always read/written as a single row keyed
// by its identity tuple, so it uses a dedicated table instead of the
// generic document helpers.
type TranlogStatusRepository struct {
	repo *Repository
}

func NewTranlogStatusRepository(repo *Repository) *TranlogStatusRepository {
	return &TranlogStatusRepository{repo: repo}
}

func (r *TranlogStatusRepository) Get(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionNo int64) (*tranlog.TransactionStatus, error) {
	return scanTransactionStatus(ctx, r.repo, tenantID, storeCode, terminalNo, transactionNo)
}

func (r *TranlogStatusRepository) Upsert(ctx context.Context, status *tranlog.TransactionStatus) error {
	data, err := marshalDoc(status)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transaction_statuses (tenant_id, store_code, terminal_no, transaction_no, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, store_code, terminal_no, transaction_no)
		DO UPDATE SET data = $5, updated_at = now()`
	_, err = r.repo.db.ExecContext(ctx, query, status.TenantID, status.StoreCode, status.TerminalNo, status.TransactionNo, data)
	if err != nil {
		return fmt.Errorf("%w: upsert transaction status: %v", ErrDatabaseError, err)
	}
	return nil
}

func scanTransactionStatus(ctx context.Context, repo *Repository, tenantID, storeCode string, terminalNo int, transactionNo int64) (*tranlog.TransactionStatus, error) {
	query := `SELECT data FROM transaction_statuses WHERE tenant_id = $1 AND store_code = $2 AND terminal_no = $3 AND transaction_no = $4`
	var data []byte
	err := repo.db.QueryRowxContext(ctx, query, tenantID, storeCode, terminalNo, transactionNo).Scan(&data)
	if scanNoRows(err) {
		return nil, NewNotFoundError("transaction_status", fmt.Sprintf("%s/%s/%d/%d", tenantID, storeCode, terminalNo, transactionNo))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction status: %v", ErrDatabaseError, err)
	}
	var status tranlog.TransactionStatus
	if err := unmarshalDoc(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TranlogCounterRepository adapts the shared transaction_counters table to
// domain/tranlog.CounterRepository's CounterType-keyed signature.
type TranlogCounterRepository struct {
	repo *Repository
}

func NewTranlogCounterRepository(repo *Repository) *TranlogCounterRepository {
	return &TranlogCounterRepository{repo: repo}
}

func (r *TranlogCounterRepository) NextValue(ctx context.Context, tenantID string, counterType tranlog.CounterType, storeCode string, terminalNo int) (int64, error) {
	return r.repo.NextCounterValue(ctx, tenantID, string(counterType), storeCode, terminalNo)
}
