package report

import (
	"context"
	"fmt"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// ReconciliationGate guards daily-report generation: a daily
// report may not be produced for a terminal/business_date/open_counter
// session until that session has actually been closed (a close OpenCloseLog
// row exists) and the close snapshot's counts and last-values agree with
// what the CashInOutLog and tranlog stores now show.
// Flash reports bypass the gate entirely — they report on an open session
// by definition.
type ReconciliationGate struct {
	cash     CashSource
	tranlogs TerminalLookup
	cache    DailyInfoRepository
	logger   *logging.Logger
}

func NewReconciliationGate(cash CashSource, tranlogs TerminalLookup, cache DailyInfoRepository, logger *logging.Logger) *ReconciliationGate {
	if logger == nil {
		logger = logging.NewFromEnv("report-gate")
	}
	return &ReconciliationGate{cash: cash, tranlogs: tranlogs, cache: cache, logger: logger}
}

// Check verifies one terminal's session is closed and reconciled, using
// the DailyInfo cache to skip the repeat work once a session has already
// passed — once verified, subsequent daily-report requests for the same
// key skip the gate. ReportScope "flash" always passes without
// touching the cache or the close log.
func (g *ReconciliationGate) Check(ctx context.Context, scope Scope, terminalNo, openCounter int) error {
	if scope.ReportScope == "flash" {
		return nil
	}

	if cached, err := g.cache.Get(ctx, scope.TenantID, scope.StoreCode, terminalNo, scope.BusinessDate, openCounter); err == nil && cached != nil && cached.Verified {
		return nil
	}

	snap, err := g.cash.LatestCloseSnapshot(ctx, scope.TenantID, scope.StoreCode, terminalNo, openCounter, scope.BusinessDate)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.TerminalNotClosed()
	}
	return g.verify(ctx, scope, terminalNo, snap)
}

// verify compares the close snapshot against current repository state and
// records the outcome as a DailyInfo row, verified or not.
func (g *ReconciliationGate) verify(ctx context.Context, scope Scope, terminalNo int, snap *CloseSnapshot) error {
	cashCount, cashLast, err := g.cash.CountCashInOut(ctx, scope.TenantID, scope.StoreCode, terminalNo, scope.BusinessDate, snap.OpenCounter)
	if err != nil {
		return err
	}
	tranCount, tranLast, err := g.tranlogs.CountAndLastNo(ctx, scope.TenantID, scope.StoreCode, terminalNo, scope.BusinessDate, snap.OpenCounter)
	if err != nil {
		return err
	}

	message := "all logs received"
	switch {
	case cashCount != snap.CashInOutCount:
		message = fmt.Sprintf("cash in/out count mismatch: close recorded %d, repository has %d", snap.CashInOutCount, cashCount)
	case snap.CashInOutCount > 0 && cashLast.Unix() != snap.CashInOutLastDateTime.Unix():
		message = fmt.Sprintf("cash in/out last datetime mismatch: close recorded %s, repository has %s", snap.CashInOutLastDateTime, cashLast)
	case tranCount != snap.CartTransactionCount:
		message = fmt.Sprintf("transaction count mismatch: close recorded %d, repository has %d", snap.CartTransactionCount, tranCount)
	case tranLast != snap.CartTransactionLastNo:
		message = fmt.Sprintf("last transaction_no mismatch: close recorded %d, repository has %d", snap.CartTransactionLastNo, tranLast)
	}
	verified := message == "all logs received"

	info := &DailyInfo{
		TenantID:     scope.TenantID,
		StoreCode:    scope.StoreCode,
		TerminalNo:   terminalNo,
		BusinessDate: scope.BusinessDate,
		OpenCounter:  snap.OpenCounter,
		Verified:     verified,
		Message:      message,
	}
	if err := g.cache.Upsert(ctx, info); err != nil {
		g.logger.WithContext(ctx).WithError(err).Warn("failed to persist reconciliation cache")
	}

	if !verified {
		g.logger.WithContext(ctx).WithField("terminal_no", terminalNo).WithField("reason", message).Warn("daily report blocked by reconciliation gate")
		return errors.TerminalNotClosed().WithDetails("reason", message)
	}
	return nil
}

// CheckStore runs Check across every terminal registered to the store
// — all must pass — used when Scope.TerminalNo is nil — a whole-store daily
// report. Each terminal's most recent close for the business date supplies
// the open_counter, since a store-wide report has no single caller-supplied
// session.
func (g *ReconciliationGate) CheckStore(ctx context.Context, scope Scope) error {
	if scope.ReportScope == "flash" {
		return nil
	}
	terminalNos, err := g.tranlogs.ListTerminalNos(ctx, scope.TenantID, scope.StoreCode)
	if err != nil {
		return err
	}
	for _, no := range terminalNos {
		snap, err := g.cash.LatestCloseSnapshot(ctx, scope.TenantID, scope.StoreCode, no, -1, scope.BusinessDate)
		if err != nil {
			return err
		}
		if snap == nil {
			return errors.TerminalNotClosed().WithDetails("terminal_no", no)
		}
		if cached, err := g.cache.Get(ctx, scope.TenantID, scope.StoreCode, no, scope.BusinessDate, snap.OpenCounter); err == nil && cached != nil && cached.Verified {
			continue
		}
		if err := g.verify(ctx, scope, no, snap); err != nil {
			return err
		}
	}
	return nil
}
