package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kugelpos/transactional-core/domain/report"
	"github.com/kugelpos/transactional-core/domain/tranlog"
)

// ReportTranlogSource adapts the tranlog store to report.TranlogSource:
// list the scope's tranlogs and flatten each into the pre-projected row
// shape the aggregator folds over. Cancelled transactions
// are excluded here; they never enter a report.
type ReportTranlogSource struct {
	tranlogs *TranlogRepository
}

func NewReportTranlogSource(tranlogs *TranlogRepository) *ReportTranlogSource {
	return &ReportTranlogSource{tranlogs: tranlogs}
}

func (s *ReportTranlogSource) ListRows(ctx context.Context, scope report.Scope) ([]report.TranlogRow, error) {
	logs, err := s.tranlogs.List(ctx, tranlog.ListFilter{
		TenantID:         scope.TenantID,
		StoreCode:        scope.StoreCode,
		TerminalNo:       scope.TerminalNo,
		BusinessDate:     scope.BusinessDate,
		FromDate:         scope.FromDate,
		ToDate:           scope.ToDate,
		OpenCounter:      scope.OpenCounter,
		ExcludeCancelled: true,
	})
	if err != nil {
		return nil, err
	}
	rows := make([]report.TranlogRow, 0, len(logs))
	for _, t := range logs {
		rows = append(rows, report.RowFromTranlog(
			t.TenantID, t.StoreCode, t.TerminalNo, t.BusinessDate,
			t.TransactionNo, t.TransactionType,
			t.LineItems, t.SubtotalDiscounts, t.Taxes, t.Payments, t.Sales,
		))
	}
	return rows, nil
}

// ReportCashSource adapts the terminal-side log tables to report.CashSource.
type ReportCashSource struct {
	terminals *TerminalRepository
}

func NewReportCashSource(terminals *TerminalRepository) *ReportCashSource {
	return &ReportCashSource{terminals: terminals}
}

func (s *ReportCashSource) SumCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int64, int64, error) {
	return s.terminals.SumCashInOut(ctx, tenantID, storeCode, terminalNo, businessDate, openCounter)
}

func (s *ReportCashSource) CountCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int, time.Time, error) {
	count, lastUnix, err := s.terminals.CountCashInOutLogs(ctx, tenantID, storeCode, terminalNo, openCounter, businessDate)
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, time.Unix(lastUnix, 0).UTC(), nil
}

func (s *ReportCashSource) LatestCloseSnapshot(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (*report.CloseSnapshot, error) {
	log, err := s.terminals.GetLatestCloseLog(ctx, tenantID, storeCode, terminalNo, openCounter, businessDate)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := &report.CloseSnapshot{
		OpenCounter:           log.OpenCounter,
		CartTransactionCount:  log.CartTransactionCount,
		CartTransactionLastNo: log.CartTransactionLastNo,
		CashInOutCount:        log.CashInOutCount,
		CashInOutLastDateTime: log.CashInOutLastDateTime,
	}
	if log.PhysicalAmount != nil {
		snap.PhysicalAmount = *log.PhysicalAmount
	}
	return snap, nil
}

// ReportTerminalLookup adapts tranlog counts and the terminal registry to
// report.TerminalLookup for the reconciliation gate.
type ReportTerminalLookup struct {
	tranlogs  *TranlogRepository
	terminals *TerminalRepository
}

func NewReportTerminalLookup(tranlogs *TranlogRepository, terminals *TerminalRepository) *ReportTerminalLookup {
	return &ReportTerminalLookup{tranlogs: tranlogs, terminals: terminals}
}

func (l *ReportTerminalLookup) CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (int, int64, error) {
	return l.tranlogs.CountAndLastNo(ctx, tenantID, storeCode, terminalNo, businessDate, openCounter)
}

func (l *ReportTerminalLookup) ListTerminalNos(ctx context.Context, tenantID, storeCode string) ([]int, error) {
	terminals, err := l.terminals.ListByStore(ctx, tenantID, storeCode)
	if err != nil {
		return nil, err
	}
	nos := make([]int, 0, len(terminals))
	for _, t := range terminals {
		nos = append(nos, t.TerminalNo)
	}
	return nos, nil
}

// DailyInfoRepository is the Postgres-backed report.DailyInfoRepository:
// the gate's verified-cache, one row per terminal session.
type DailyInfoRepository struct {
	repo *Repository
}

func NewDailyInfoRepository(repo *Repository) *DailyInfoRepository {
	return &DailyInfoRepository{repo: repo}
}

func (r *DailyInfoRepository) Get(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (*report.DailyInfo, error) {
	query := `
		SELECT verified, message FROM daily_info
		WHERE tenant_id = $1 AND store_code = $2 AND terminal_no = $3 AND business_date = $4 AND open_counter = $5`
	info := &report.DailyInfo{
		TenantID: tenantID, StoreCode: storeCode, TerminalNo: terminalNo,
		BusinessDate: businessDate, OpenCounter: openCounter,
	}
	err := r.repo.db.QueryRowxContext(ctx, query, tenantID, storeCode, terminalNo, businessDate, openCounter).Scan(&info.Verified, &info.Message)
	if scanNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get daily info: %v", ErrDatabaseError, err)
	}
	return info, nil
}

func (r *DailyInfoRepository) Upsert(ctx context.Context, info *report.DailyInfo) error {
	query := `
		INSERT INTO daily_info (tenant_id, store_code, terminal_no, business_date, open_counter, verified, message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (tenant_id, store_code, terminal_no, business_date, open_counter)
		DO UPDATE SET verified = $6, message = $7, updated_at = now()`
	_, err := r.repo.db.ExecContext(ctx, query, info.TenantID, info.StoreCode, info.TerminalNo, info.BusinessDate, info.OpenCounter, info.Verified, info.Message)
	if err != nil {
		return fmt.Errorf("%w: upsert daily info: %v", ErrDatabaseError, err)
	}
	return nil
}
