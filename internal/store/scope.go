package store

import (
	"context"
	"fmt"

	"github.com/craftline/tenantd/pkg/schemaname"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AcquireSchema hands out an exclusive connection whose search_path resolves
// unqualified references in schemaName first, then the shared schema. The
// connection is held for the caller's whole request; nothing else can
// interleave queries on it until Release.
func (s *PostgresRegistry) AcquireSchema(ctx context.Context, schemaName string) (SchemaConn, error) {
	if !schemaname.IsTenantSchema(schemaName) {
		return nil, fmt.Errorf("schema %q is outside the tenant namespace", schemaName)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx,
		"SET search_path TO "+pgx.Identifier{schemaName}.Sanitize()+", public"); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set search_path to %s: %w", schemaName, err)
	}

	return &scopedConn{conn: conn, schema: schemaName}, nil
}

type scopedConn struct {
	conn     *pgxpool.Conn
	schema   string
	released bool
}

func (c *scopedConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c *scopedConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *scopedConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c *scopedConn) Schema() string {
	return c.schema
}

// Release resets the search_path and returns the connection to the pool.
// A connection whose reset fails is closed outright: the pool must never see
// a connection still pointed at a tenant schema.
func (c *scopedConn) Release() {
	if c.released {
		return
	}
	c.released = true

	ctx := context.Background()
	if _, err := c.conn.Exec(ctx, "RESET search_path"); err != nil {
		c.conn.Conn().Close(ctx)
	}
	c.conn.Release()
}
