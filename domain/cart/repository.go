package cart

import (
	"context"
	"time"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/state"
)

// Repository is the `cache_carts` store: a TTL'd cache, not a
// durable table — a cart that is never billed or cancelled simply expires.
type Repository interface {
	Save(ctx context.Context, c *Cart) error
	Get(ctx context.Context, tenantID, cartID string) (*Cart, error)
	Delete(ctx context.Context, tenantID, cartID string) error
}

// CacheRepository is the default Repository, backed by a state.TTLCache
// (so it works identically against the in-process MemoryBackend in tests
// and the shared RedisBackend across replicas in production).
type CacheRepository struct {
	cache *state.TTLCache[Cart]
}

func NewCacheRepository(backend state.PersistenceBackend, ttl time.Duration) *CacheRepository {
	return &CacheRepository{cache: state.NewTTLCache[Cart](backend, "cart", ttl)}
}

func (r *CacheRepository) key(tenantID, cartID string) string { return tenantID + ":" + cartID }

func (r *CacheRepository) Save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = time.Now().UTC()
	return r.cache.Set(ctx, r.key(c.TenantID, c.CartID), *c)
}

func (r *CacheRepository) Get(ctx context.Context, tenantID, cartID string) (*Cart, error) {
	value, ok := r.cache.Get(ctx, r.key(tenantID, cartID))
	if !ok {
		return nil, errors.NotFound("cart", cartID)
	}
	return &value, nil
}

func (r *CacheRepository) Delete(ctx context.Context, tenantID, cartID string) error {
	return r.cache.Invalidate(ctx, r.key(tenantID, cartID))
}
