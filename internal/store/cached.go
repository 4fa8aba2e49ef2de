package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/craftline/tenantd/internal/cache"
	"github.com/craftline/tenantd/pkg/models"
)

// CachedRegistry wraps a Registry with a read-through cache for the hot
// entity-ID lookup used on every bound request. Mutations invalidate the
// cached entry; lookups by schema name bypass the cache.
type CachedRegistry struct {
	Registry
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedRegistry(inner Registry, c cache.Cache, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{Registry: inner, cache: c, ttl: ttl}
}

func (r *CachedRegistry) GetByEntityID(ctx context.Context, entityID string) (*models.Tenant, error) {
	key := cache.TenantKey(entityID)

	if raw, found, err := r.cache.Get(ctx, key); err == nil && found {
		var t models.Tenant
		if json.Unmarshal(raw, &t) == nil {
			return &t, nil
		}
	}

	t, err := r.Registry.GetByEntityID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(t); err == nil {
		// Cache write failures are not fatal; the next lookup hits the store.
		_ = r.cache.Set(ctx, key, raw, r.ttl)
	}
	return t, nil
}

func (r *CachedRegistry) Create(ctx context.Context, entityID, entityName string) (*models.Tenant, bool, error) {
	t, created, err := r.Registry.Create(ctx, entityID, entityName)
	if err == nil {
		_ = r.cache.Delete(ctx, cache.TenantKey(entityID))
	}
	return t, created, err
}

func (r *CachedRegistry) Update(ctx context.Context, entityID string, opts ...TenantUpdateOption) (*models.Tenant, error) {
	t, err := r.Registry.Update(ctx, entityID, opts...)
	if err == nil {
		_ = r.cache.Delete(ctx, cache.TenantKey(entityID))
	}
	return t, err
}

func (r *CachedRegistry) Delete(ctx context.Context, entityID string) (bool, error) {
	deleted, err := r.Registry.Delete(ctx, entityID)
	if err == nil && deleted {
		_ = r.cache.Delete(ctx, cache.TenantKey(entityID))
	}
	return deleted, err
}

// Repair mutates rows behind the entity-ID lookup: recreated tenants are
// demoted to pending and must stop binding immediately, not after the TTL.
func (r *CachedRegistry) Repair(ctx context.Context) (*RepairReport, error) {
	report, err := r.Registry.Repair(ctx)
	if err != nil {
		return nil, err
	}
	for _, entityID := range report.Recreated {
		_ = r.cache.Delete(ctx, cache.TenantKey(entityID))
	}
	for _, entityID := range report.Corrupt {
		_ = r.cache.Delete(ctx, cache.TenantKey(entityID))
	}
	return report, nil
}
