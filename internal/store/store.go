package store

import (
	"context"
	"errors"

	"github.com/craftline/tenantd/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("tenant not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Registry is the tenant data access interface. It owns the mapping from an
// external entity ID to a provisioned schema and the per-request
// schema-scoped connection primitive.
type Registry interface {
	Ping(ctx context.Context) error

	// Init idempotently creates the registry's own table and indexes in the
	// shared schema. Safe to call on every startup.
	Init(ctx context.Context) error

	// Create provisions a schema and registry row for entityID, or returns
	// the existing tenant unchanged. The bool reports whether a new tenant
	// was created.
	Create(ctx context.Context, entityID, entityName string) (*models.Tenant, bool, error)

	GetByEntityID(ctx context.Context, entityID string) (*models.Tenant, error)
	GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error)

	// List returns all tenants, most recently created first.
	List(ctx context.Context) ([]*models.Tenant, error)

	// Update applies the given options and refreshes updated_at.
	Update(ctx context.Context, entityID string, opts ...TenantUpdateOption) (*models.Tenant, error)

	// Delete drops the tenant's schema with everything in it and removes the
	// row. Returns false with no side effects if entityID is unknown.
	Delete(ctx context.Context, entityID string) (bool, error)

	// Repair reconciles registry rows against the schemas that actually
	// exist. See RepairReport.
	Repair(ctx context.Context) (*RepairReport, error)

	// AcquireSchema checks a connection out of the pool for exclusive use and
	// pins its search_path to schemaName (falling back to the shared schema).
	// The caller must Release the connection when the request is done.
	AcquireSchema(ctx context.Context, schemaName string) (SchemaConn, error)
}

// SchemaConn is an exclusively held connection whose unqualified references
// resolve inside one tenant's schema. Release restores the connection's
// search_path before it can be reused; a connection whose reset fails is
// destroyed instead of returned to the pool.
type SchemaConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Schema() string
	Release()
}

// RepairReport summarizes one reconciliation pass.
type RepairReport struct {
	// Recreated lists entity IDs whose backing schema was missing and has
	// been recreated empty; those rows are demoted to pending.
	Recreated []string `json:"recreated"`
	// Leaked lists tenant schemas that exist without a registry row. They are
	// reported, never dropped.
	Leaked []string `json:"leaked"`
	// Corrupt lists entity IDs whose stored schema name no longer matches the
	// derivation.
	Corrupt []string `json:"corrupt"`
}

type tenantUpdateParams struct {
	EntityName *string
	Status     *models.TenantStatus
}

type TenantUpdateOption func(*tenantUpdateParams)

func WithEntityName(name string) TenantUpdateOption {
	return func(p *tenantUpdateParams) {
		p.EntityName = &name
	}
}

func WithStatus(status models.TenantStatus) TenantUpdateOption {
	return func(p *tenantUpdateParams) {
		p.Status = &status
	}
}
