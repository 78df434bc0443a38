package report

import (
	"context"
	"time"
)

// TranlogSource is the narrow read interface the aggregator needs from the
// tranlog store: already-materialised rows for one scope,
// never raw LineItems — flattening into TranlogRow happens where the rows
// are produced: repositories are the only place a service reaches outside
// its own aggregate.
type TranlogSource interface {
	ListRows(ctx context.Context, scope Scope) ([]TranlogRow, error)
}

// CloseSnapshot is the reconciliation snapshot a close OpenCloseLog row
// embeds: the counts and last-values the terminal recorded at
// close time, which the gate compares against what the repositories show
// now.
type CloseSnapshot struct {
	OpenCounter           int
	PhysicalAmount        int64
	CartTransactionCount  int
	CartTransactionLastNo int64
	CashInOutCount        int
	CashInOutLastDateTime time.Time
}

// CashSource supplies the CashInOutLog/OpenCloseLog facts the `cash` block
// joins against the fold output and the gate verifies counts against
//. LatestCloseSnapshot returns (nil, nil) when no close row exists;
// an openCounter of -1 asks the implementation to resolve the terminal's
// most recent close for the business date (store-wide daily reports have
// no single caller-supplied session).
type CashSource interface {
	SumCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (cashIn, cashOut int64, err error)
	CountCashInOut(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (count int, lastDateTime time.Time, err error)
	LatestCloseSnapshot(ctx context.Context, tenantID, storeCode string, terminalNo, openCounter int, businessDate string) (*CloseSnapshot, error)
}

// DailyInfo is the verified-cache row the reconciliation gate writes once
// a terminal's daily report preconditions have been checked, so repeated
// report requests for the same business_date/open_counter don't re-walk
// the close log and tranlog counts every time.
type DailyInfo struct {
	TenantID     string
	StoreCode    string
	TerminalNo   int
	BusinessDate string
	OpenCounter  int
	Verified     bool
	Message      string
}

// DailyInfoRepository persists the reconciliation gate's verified cache.
type DailyInfoRepository interface {
	Get(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (*DailyInfo, error)
	Upsert(ctx context.Context, info *DailyInfo) error
}

// TerminalLookup is the narrow view the gate needs of the tranlog store
// and the terminal registry: current per-session tranlog counts to compare
// against the close snapshot, and, for store-wide daily reports, every
// terminal under the store (the gate runs per-terminal; all must pass).
type TerminalLookup interface {
	CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (count int, lastTransactionNo int64, err error)
	ListTerminalNos(ctx context.Context, tenantID, storeCode string) ([]int, error)
}
