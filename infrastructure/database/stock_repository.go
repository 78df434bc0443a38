package database

import (
	"context"
	"fmt"

	"github.com/kugelpos/transactional-core/domain/stock"
)

const (
	stockItemsTable     = "stock_items"
	stockUpdatesTable   = "stock_updates"
	stockSnapshotsTable = "stock_snapshots"
)

// StockRepository is the Postgres-backed domain/stock.Repository: per-item
// inventory rows plus the append-only StockUpdate ledger.
type StockRepository struct {
	repo *Repository
}

func NewStockRepository(repo *Repository) *StockRepository {
	return &StockRepository{repo: repo}
}

func stockID(storeCode, itemCode string) string {
	return storeCode + "-" + itemCode
}

// Get returns (nil, nil) for an item never stocked — the consumer treats
// that as a zero-quantity row, not an error.
func (r *StockRepository) Get(ctx context.Context, tenantID, storeCode, itemCode string) (*stock.Stock, error) {
	s, err := GenericGetByID[stock.Stock](ctx, r.repo, stockItemsTable, tenantID, stockID(storeCode, itemCode))
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StockRepository) Upsert(ctx context.Context, s *stock.Stock) error {
	data, err := marshalDoc(s)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO stock_items (id, tenant_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (tenant_id, id)
		DO UPDATE SET data = $3, updated_at = now()`
	if _, err := r.repo.db.ExecContext(ctx, query, stockID(s.StoreCode, s.ItemCode), s.TenantID, data); err != nil {
		return fmt.Errorf("%w: upsert stock: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *StockRepository) AppendUpdate(ctx context.Context, u *stock.StockUpdate) error {
	id := fmt.Sprintf("%s-%s-%s", u.EventID, u.StoreCode, u.ItemCode)
	return GenericCreate(ctx, r.repo, stockUpdatesTable, u.TenantID, id, u, nil)
}

func (r *StockRepository) ListByStore(ctx context.Context, tenantID, storeCode string) ([]stock.Stock, error) {
	return GenericListByField[stock.Stock](ctx, r.repo, stockItemsTable, tenantID, "store_code", storeCode)
}

func (r *StockRepository) ListByTenant(ctx context.Context, tenantID string) ([]stock.Stock, error) {
	return GenericList[stock.Stock](ctx, r.repo, stockItemsTable, tenantID)
}

// StockSnapshotRepository is the Postgres-backed domain/stock.SnapshotRepository.
type StockSnapshotRepository struct {
	repo *Repository
}

func NewStockSnapshotRepository(repo *Repository) *StockSnapshotRepository {
	return &StockSnapshotRepository{repo: repo}
}

func (r *StockSnapshotRepository) Create(ctx context.Context, snap *stock.StockSnapshot) error {
	return GenericCreate(ctx, r.repo, stockSnapshotsTable, snap.TenantID, snap.SnapshotID, snap, nil)
}

func (r *StockSnapshotRepository) DeleteOlderThan(ctx context.Context, tenantID string, cutoffDays int) error {
	query := `DELETE FROM stock_snapshots WHERE tenant_id = $1 AND created_at < now() - make_interval(days => $2)`
	if _, err := r.repo.db.ExecContext(ctx, query, tenantID, cutoffDays); err != nil {
		return fmt.Errorf("%w: prune stock snapshots: %v", ErrDatabaseError, err)
	}
	return nil
}
