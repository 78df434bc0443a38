package master

import (
	"context"
	"fmt"
	"time"

	"github.com/kugelpos/transactional-core/infrastructure/state"
)

// Cache is the per-service master-data cache: populated on demand,
// invalidated by TTL, process-wide state behind the TTLCache's own mutex.
// A cart never mutates this cache directly — it takes an owned copy for
// its frozen snapshot, so two carts racing on one terminal cannot clobber
// each other's master data.
type Cache struct {
	items    *state.TTLCache[Item]
	taxes    *state.TTLCache[Tax]
	payments *state.TTLCache[PaymentMethod]
	store    Store
}

func NewCache(backend state.PersistenceBackend, store Store, ttl time.Duration) *Cache {
	return &Cache{
		items:    state.NewTTLCache[Item](backend, "master:item", ttl),
		taxes:    state.NewTTLCache[Tax](backend, "master:tax", ttl),
		payments: state.NewTTLCache[PaymentMethod](backend, "master:payment", ttl),
		store:    store,
	}
}

func tenantKey(tenantID, code string) string { return fmt.Sprintf("%s:%s", tenantID, code) }

func (c *Cache) Item(ctx context.Context, tenantID, itemCode string) (Item, error) {
	return c.items.GetOrLoad(ctx, tenantKey(tenantID, itemCode), func(ctx context.Context) (Item, error) {
		item, err := c.store.GetItem(ctx, tenantID, itemCode)
		if err != nil {
			return Item{}, err
		}
		return *item, nil
	})
}

func (c *Cache) Tax(ctx context.Context, tenantID, taxCode string) (Tax, error) {
	return c.taxes.GetOrLoad(ctx, tenantKey(tenantID, taxCode), func(ctx context.Context) (Tax, error) {
		tax, err := c.store.GetTax(ctx, tenantID, taxCode)
		if err != nil {
			return Tax{}, err
		}
		return *tax, nil
	})
}

func (c *Cache) PaymentMethod(ctx context.Context, tenantID, paymentCode string) (PaymentMethod, error) {
	return c.payments.GetOrLoad(ctx, tenantKey(tenantID, paymentCode), func(ctx context.Context) (PaymentMethod, error) {
		pm, err := c.store.GetPaymentMethod(ctx, tenantID, paymentCode)
		if err != nil {
			return PaymentMethod{}, err
		}
		return *pm, nil
	})
}

// InvalidateItem evicts a single item entry, used when master-data
// CRUD (owned by the master-data service) notifies this one of a change.
func (c *Cache) InvalidateItem(ctx context.Context, tenantID, itemCode string) {
	_ = c.items.Invalidate(ctx, tenantKey(tenantID, itemCode))
}
