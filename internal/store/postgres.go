package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/craftline/tenantd/pkg/models"
	"github.com/craftline/tenantd/pkg/schemaname"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tenantColumns = "id, entity_id, entity_name, schema_name, status, created_at, updated_at"

// PostgresRegistry implements the Registry interface using pgx/v5. Tenant
// schemas live in the same database as the registry table, so provisioning
// and teardown each run as a single transaction (Postgres DDL is
// transactional).
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgresRegistry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresRegistry) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Init creates the tenants table and its indexes if they do not exist yet.
// Deployments normally apply the same DDL via migrations; this covers the
// explicit initialize operation on the admin API.
func (s *PostgresRegistry) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			id          TEXT PRIMARY KEY,
			entity_id   TEXT NOT NULL UNIQUE,
			entity_name TEXT NOT NULL,
			schema_name TEXT NOT NULL UNIQUE,
			status      TEXT NOT NULL DEFAULT 'active'
				CHECK (status IN ('active', 'inactive', 'pending')),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create tenants table: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tenants_created_at ON tenants (created_at DESC)`)
	if err != nil {
		return fmt.Errorf("create tenants index: %w", err)
	}
	return nil
}

func (s *PostgresRegistry) Create(ctx context.Context, entityID, entityName string) (*models.Tenant, bool, error) {
	schema, err := schemaname.FromEntityID(entityID)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin create tenant: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent create/delete for the same entity. The lock is
	// released on commit or rollback.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, entityID); err != nil {
		return nil, false, fmt.Errorf("lock tenant %q: %w", entityID, err)
	}

	existing, err := scanTenant(tx.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE entity_id = $1`, entityID))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("check existing tenant: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return nil, false, fmt.Errorf("create schema %s: %w", schema, err)
	}

	now := time.Now().UTC()
	t, err := scanTenant(tx.QueryRow(ctx,
		`INSERT INTO tenants (id, entity_id, entity_name, schema_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+tenantColumns,
		schemaname.TenantID(entityID), entityID, entityName, schema, models.StatusActive, now, now))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, false, ErrDuplicateKey
		}
		return nil, false, fmt.Errorf("insert tenant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit create tenant: %w", err)
	}
	return t, true, nil
}

func (s *PostgresRegistry) GetByEntityID(ctx context.Context, entityID string) (*models.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE entity_id = $1`, entityID))
}

func (s *PostgresRegistry) GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE schema_name = $1`, schemaName))
}

func (s *PostgresRegistry) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.EntityID, &t.EntityName, &t.SchemaName,
			&t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (s *PostgresRegistry) Update(ctx context.Context, entityID string, opts ...TenantUpdateOption) (*models.Tenant, error) {
	params := &tenantUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	if params.EntityName == nil && params.Status == nil {
		return s.GetByEntityID(ctx, entityID)
	}
	if params.Status != nil && !params.Status.Assignable() {
		return nil, fmt.Errorf("status %q is not assignable", *params.Status)
	}

	query := `UPDATE tenants SET updated_at = $2`
	args := []any{entityID, time.Now().UTC()}
	argIdx := 3

	if params.EntityName != nil {
		query += fmt.Sprintf(", entity_name = $%d", argIdx)
		args = append(args, *params.EntityName)
		argIdx++
	}
	if params.Status != nil {
		query += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, *params.Status)
		argIdx++
	}

	query += " WHERE entity_id = $1 RETURNING " + tenantColumns

	t, err := scanTenant(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresRegistry) Delete(ctx context.Context, entityID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin delete tenant: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, entityID); err != nil {
		return false, fmt.Errorf("lock tenant %q: %w", entityID, err)
	}

	var schema string
	err = tx.QueryRow(ctx,
		`SELECT schema_name FROM tenants WHERE entity_id = $1`, entityID).Scan(&schema)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find tenant schema: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
		return false, fmt.Errorf("drop schema %s: %w", schema, err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM tenants WHERE entity_id = $1`, entityID); err != nil {
		return false, fmt.Errorf("delete tenant row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit delete tenant: %w", err)
	}
	return true, nil
}

// Repair cross-references registry rows against the schemas that actually
// exist. Rows whose schema vanished get an empty schema recreated and are
// demoted to pending until an operator re-activates them. Schemas in the
// tenant namespace without a row are reported as leaked but never dropped.
func (s *PostgresRegistry) Repair(ctx context.Context) (*RepairReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT entity_id, schema_name FROM tenants`)
	if err != nil {
		return nil, fmt.Errorf("list tenant rows: %w", err)
	}
	defer rows.Close()

	registered := make(map[string]string) // schema_name -> entity_id
	var corrupt []string
	for rows.Next() {
		var entityID, schema string
		if err := rows.Scan(&entityID, &schema); err != nil {
			return nil, fmt.Errorf("scan tenant row: %w", err)
		}
		derived, err := schemaname.FromEntityID(entityID)
		if err != nil || derived != schema {
			corrupt = append(corrupt, entityID)
			continue
		}
		registered[schema] = entityID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	existing, err := s.tenantSchemas(ctx)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{Corrupt: corrupt}
	for schema, entityID := range registered {
		if existing[schema] {
			continue
		}
		if err := s.recreateSchema(ctx, entityID, schema); err != nil {
			return nil, err
		}
		report.Recreated = append(report.Recreated, entityID)
	}
	for schema := range existing {
		if _, ok := registered[schema]; !ok {
			report.Leaked = append(report.Leaked, schema)
		}
	}

	sort.Strings(report.Recreated)
	sort.Strings(report.Leaked)
	sort.Strings(report.Corrupt)
	return report, nil
}

// tenantSchemas returns the set of schemas in the derived-name namespace.
func (s *PostgresRegistry) tenantSchemas(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE $1`,
		strings.ReplaceAll(schemaname.Prefix, "_", `\_`)+"%")
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	schemas := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema name: %w", err)
		}
		schemas[name] = true
	}
	return schemas, rows.Err()
}

func (s *PostgresRegistry) recreateSchema(ctx context.Context, entityID, schema string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin repair of %q: %w", entityID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, entityID); err != nil {
		return fmt.Errorf("lock tenant %q: %w", entityID, err)
	}
	if _, err := tx.Exec(ctx,
		"CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("recreate schema %s: %w", schema, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = $3 WHERE entity_id = $1`,
		entityID, models.StatusPending, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark tenant %q pending: %w", entityID, err)
	}
	return tx.Commit(ctx)
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.EntityID, &t.EntityName, &t.SchemaName,
		&t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
