package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/craftline/tenantd/internal/api/middleware"
	"github.com/craftline/tenantd/internal/api/response"
	"github.com/craftline/tenantd/internal/store"
	"github.com/craftline/tenantd/pkg/models"
	"github.com/craftline/tenantd/pkg/schemaname"
)

// TenantRegistry defines the registry surface the handlers depend on.
type TenantRegistry interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, entityID, entityName string) (*models.Tenant, bool, error)
	GetByEntityID(ctx context.Context, entityID string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Update(ctx context.Context, entityID string, opts ...store.TenantUpdateOption) (*models.Tenant, error)
	Delete(ctx context.Context, entityID string) (bool, error)
	Repair(ctx context.Context) (*store.RepairReport, error)
}

// NewInitHandler returns an http.HandlerFunc for POST /api/v1/tenants/init.
func NewInitHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Init(r.Context()); err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to initialize tenant registry", err.Error())
			return
		}
		response.JSON(w, map[string]any{"initialized": true})
	}
}

// NewCreateHandler returns an http.HandlerFunc for POST /api/v1/tenants.
// Creating an entity ID that already exists returns the existing tenant
// unchanged with a 200 instead of a 201.
func NewCreateHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EntityID   string `json:"entity_id"`
			EntityName string `json:"entity_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.EntityID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "entity_id is required", nil)
			return
		}
		if req.EntityName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "entity_name is required", nil)
			return
		}

		tenant, created, err := reg.Create(r.Context(), req.EntityID, req.EntityName)
		if err != nil {
			if errors.Is(err, schemaname.ErrInvalidEntityID) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to create tenant", err.Error())
			return
		}

		if created {
			response.Created(w, tenant)
			return
		}
		response.JSON(w, tenant)
	}
}

// NewListHandler returns an http.HandlerFunc for GET /api/v1/tenants.
func NewListHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := reg.List(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list tenants", err.Error())
			return
		}
		if tenants == nil {
			tenants = []*models.Tenant{}
		}
		response.JSON(w, map[string]any{"tenants": tenants})
	}
}

// NewGetHandler returns an http.HandlerFunc for GET /api/v1/tenants/{entityID}.
func NewGetHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID := chi.URLParam(r, "entityID")

		tenant, err := reg.GetByEntityID(r.Context(), entityID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to get tenant", err.Error())
			return
		}
		response.JSON(w, tenant)
	}
}

// NewUpdateHandler returns an http.HandlerFunc for PATCH /api/v1/tenants/{entityID}.
func NewUpdateHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID := chi.URLParam(r, "entityID")

		var req struct {
			EntityName *string `json:"entity_name"`
			Status     *string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.EntityName == nil && req.Status == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"At least one of entity_name or status is required", nil)
			return
		}

		var opts []store.TenantUpdateOption
		if req.EntityName != nil {
			if *req.EntityName == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"entity_name must not be empty", nil)
				return
			}
			opts = append(opts, store.WithEntityName(*req.EntityName))
		}
		if req.Status != nil {
			status := models.TenantStatus(*req.Status)
			if !status.Assignable() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"status must be active or inactive", nil)
				return
			}
			opts = append(opts, store.WithStatus(status))
		}

		tenant, err := reg.Update(r.Context(), entityID, opts...)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to update tenant", err.Error())
			return
		}
		response.JSON(w, tenant)
	}
}

// NewDeleteHandler returns an http.HandlerFunc for DELETE /api/v1/tenants/{entityID}.
// Deletion drops the tenant's entire schema; there is no undo.
func NewDeleteHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID := chi.URLParam(r, "entityID")

		deleted, err := reg.Delete(r.Context(), entityID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to delete tenant", err.Error())
			return
		}
		if !deleted {
			response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
			return
		}
		response.JSON(w, map[string]any{"deleted": true})
	}
}

// NewRepairHandler returns an http.HandlerFunc for POST /api/v1/tenants/repair.
func NewRepairHandler(reg TenantRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := reg.Repair(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Repair pass failed", err.Error())
			return
		}
		if report.Recreated == nil {
			report.Recreated = []string{}
		}
		if report.Leaked == nil {
			report.Leaked = []string{}
		}
		if report.Corrupt == nil {
			report.Corrupt = []string{}
		}
		response.JSON(w, report)
	}
}

// NewContextHandler returns an http.HandlerFunc for GET /api/v1/context.
// It reports which schema the request was bound to, which is the shared
// schema whenever no active tenant was resolved.
func NewContextHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := mw.GetTenant(r)
		if !ok {
			response.JSON(w, map[string]any{"tenant": nil, "schema": "public"})
			return
		}

		schema := tenant.SchemaName
		if conn, ok := mw.GetSchemaConn(r); ok {
			schema = conn.Schema()
		}
		response.JSON(w, map[string]any{"tenant": tenant, "schema": schema})
	}
}
