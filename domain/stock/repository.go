package stock

import (
	"context"

	"github.com/kugelpos/transactional-core/domain/cart"
)

// Repository persists Stock rows and the append-only StockUpdate ledger.
type Repository interface {
	Get(ctx context.Context, tenantID, storeCode, itemCode string) (*Stock, error)
	Upsert(ctx context.Context, s *Stock) error
	AppendUpdate(ctx context.Context, u *StockUpdate) error
	ListByStore(ctx context.Context, tenantID, storeCode string) ([]Stock, error)

	// ListByTenant returns every Stock row across all stores for a
	// tenant, used by the snapshot scheduler to copy "the entire Stock
	// collection for the tenant" in one pass.
	ListByTenant(ctx context.Context, tenantID string) ([]Stock, error)
}

// SnapshotRepository persists scheduled StockSnapshot documents and
// prunes them past retention_days.
type SnapshotRepository interface {
	Create(ctx context.Context, snap *StockSnapshot) error
	DeleteOlderThan(ctx context.Context, tenantID string, cutoffDays int) error
}

// TranlogEvent is the flattened shape the consumer needs out of a
// published tranlog event — just enough to compute
// deltas, never the full TransactionLog document.
type TranlogEvent struct {
	EventID         string
	TenantID        string
	StoreCode       string
	TransactionType cart.TransactionType
	LineItems       []TranlogLineItem
}

// TranlogLineItem is one non-cancelled line item's quantity contribution.
type TranlogLineItem struct {
	ItemCode    string
	Quantity    float64
	IsCancelled bool
}
