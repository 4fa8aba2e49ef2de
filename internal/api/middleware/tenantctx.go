package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/craftline/tenantd/internal/store"
	"github.com/craftline/tenantd/pkg/models"
)

const (
	// TenantHeader carries the tenant's entity ID for schema binding.
	TenantHeader = "x-tenant-id"
	// TenantCookie is the fallback source for the entity ID.
	TenantCookie = "tenant_id"
)

// TenantBinder is the slice of the registry the binding middleware needs.
type TenantBinder interface {
	GetByEntityID(ctx context.Context, entityID string) (*models.Tenant, error)
	AcquireSchema(ctx context.Context, schemaName string) (store.SchemaConn, error)
}

// TenantScope binds requests to a tenant's schema for their whole lifetime.
type TenantScope struct {
	binder TenantBinder
}

// NewTenantScope creates tenant-binding middleware.
func NewTenantScope(b TenantBinder) *TenantScope {
	return &TenantScope{binder: b}
}

// Bind reads the tenant entity ID from the request header or cookie. If it
// resolves to an active tenant, the request gets an exclusive schema-scoped
// connection, released when the handler returns. Binding is best effort: a
// missing or unresolvable identifier (or a non-active tenant) falls through
// to the shared schema without an error.
func (ts *TenantScope) Bind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entityID := r.Header.Get(TenantHeader)
		if entityID == "" {
			if cookie, err := r.Cookie(TenantCookie); err == nil {
				entityID = cookie.Value
			}
		}
		if entityID == "" {
			next.ServeHTTP(w, r)
			return
		}

		tenant, err := ts.binder.GetByEntityID(r.Context(), entityID)
		if err != nil || tenant.Status != models.StatusActive {
			next.ServeHTTP(w, r)
			return
		}

		conn, err := ts.binder.AcquireSchema(r.Context(), tenant.SchemaName)
		if err != nil {
			slog.Warn("tenant schema binding failed",
				"entity_id", entityID,
				"schema", tenant.SchemaName,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}
		defer conn.Release()

		ctx := SetTenant(r.Context(), tenant)
		ctx = setSchemaConn(ctx, conn)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
