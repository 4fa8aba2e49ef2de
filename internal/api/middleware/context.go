package middleware

import (
	"context"
	"net/http"

	"github.com/craftline/tenantd/internal/store"
	"github.com/craftline/tenantd/pkg/models"
)

type contextKey string

const (
	tenantKey     contextKey = "tenant"
	schemaConnKey contextKey = "schema_conn"
)

func SetTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

func GetTenant(r *http.Request) (*models.Tenant, bool) {
	t, ok := r.Context().Value(tenantKey).(*models.Tenant)
	return t, ok
}

func setSchemaConn(ctx context.Context, c store.SchemaConn) context.Context {
	return context.WithValue(ctx, schemaConnKey, c)
}

// GetSchemaConn returns the exclusive tenant-scoped connection bound to this
// request, if any. Handlers must not Release it; the binding middleware owns
// its lifetime.
func GetSchemaConn(r *http.Request) (store.SchemaConn, bool) {
	c, ok := r.Context().Value(schemaConnKey).(store.SchemaConn)
	return c, ok
}
