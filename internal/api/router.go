package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/craftline/tenantd/internal/api/middleware"
	"github.com/craftline/tenantd/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AdminAuth   *mw.AdminAuth
	RateLimit   *mw.RateLimit
	TenantScope *mw.TenantScope

	HealthHandler  http.HandlerFunc
	InitHandler    http.HandlerFunc
	ListTenants    http.HandlerFunc
	CreateTenant   http.HandlerFunc
	GetTenant      http.HandlerFunc
	UpdateTenant   http.HandlerFunc
	DeleteTenant   http.HandlerFunc
	RepairHandler  http.HandlerFunc
	ContextHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Tenant-bound routes. Binding is best effort; requests without a
	// resolvable active tenant run against the shared schema.
	r.Group(func(r chi.Router) {
		r.Use(deps.TenantScope.Bind)

		r.Get("/api/v1/context", orNotImplemented(deps.ContextHandler))
	})

	// Administrative tenant registry
	r.Group(func(r chi.Router) {
		r.Use(deps.AdminAuth.Require)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/tenants/init", orNotImplemented(deps.InitHandler))
		r.Post("/api/v1/tenants/repair", orNotImplemented(deps.RepairHandler))

		r.Get("/api/v1/tenants", orNotImplemented(deps.ListTenants))
		r.Post("/api/v1/tenants", orNotImplemented(deps.CreateTenant))
		r.Get("/api/v1/tenants/{entityID}", orNotImplemented(deps.GetTenant))
		r.Patch("/api/v1/tenants/{entityID}", orNotImplemented(deps.UpdateTenant))
		r.Delete("/api/v1/tenants/{entityID}", orNotImplemented(deps.DeleteTenant))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
