package database

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

const (
	listSchemasQuery = `
SELECT DISTINCT schemaname
FROM pg_tables
WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
ORDER BY schemaname`

	countEnumsQuery = `
SELECT count(DISTINCT t.oid)
FROM pg_type t
JOIN pg_enum e ON t.oid = e.enumtypid
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')`

	// One server-side loop instead of a round trip per type.
	dropEnumsStatement = `
DO
$$
DECLARE
    r RECORD;
BEGIN
    FOR r IN
        SELECT DISTINCT n.nspname AS schema, t.typname AS enum_name
        FROM pg_type t
        JOIN pg_enum e ON t.oid = e.enumtypid
        JOIN pg_namespace n ON n.oid = t.typnamespace
        WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
    LOOP
        EXECUTE format('DROP TYPE IF EXISTS %I.%I CASCADE', r.schema, r.enum_name);
    END LOOP;
END
$$`

	recreatePublicStatement = `CREATE SCHEMA IF NOT EXISTS public`
)

// systemSchemas are never dropped.
var systemSchemas = map[string]struct{}{
	"pg_catalog":         {},
	"information_schema": {},
}

// ResetReport summarises what a reset removed.
type ResetReport struct {
	Schemas []string
	Types   int
}

// ResetError wraps a failure inside the reset transaction.
type ResetError struct {
	Stage  string // list-schemas, drop-schema, count-types, drop-types, recreate-public
	Schema string
	Code   string // SQLSTATE when the server reported one
	Err    error
}

func (e *ResetError) Error() string {
	msg := "reset " + e.Stage
	if e.Schema != "" {
		msg += fmt.Sprintf(" %q", e.Schema)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	return msg + ": " + e.Err.Error()
}

func (e *ResetError) Unwrap() error { return e.Err }

// PermissionDenied reports whether the server refused the statement.
func (e *ResetError) PermissionDenied() bool {
	return e.Code == pgerrcode.InsufficientPrivilege
}

func resetErr(stage, schema string, err error) error {
	re := &ResetError{Stage: stage, Schema: schema, Err: err}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		re.Code = string(pqErr.Code)
	}
	return re
}

// ResetTx drops every non-system schema that holds tables and every enum type
// outside the system schemas. It runs on the caller's transaction and never
// commits or rolls back; on error the caller must roll back.
func ResetTx(ctx context.Context, tx Tx) (*ResetReport, error) {
	schemas, err := listSchemas(ctx, tx)
	if err != nil {
		return nil, resetErr("list-schemas", "", err)
	}

	// The drops are independent, so they are issued together; database/sql
	// serialises them on the transaction's connection.
	var droppedPublic atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, schema := range schemas {
		schema := schema
		g.Go(func() error {
			stmt := "DROP SCHEMA IF EXISTS " + pq.QuoteIdentifier(schema) + " CASCADE"
			if _, err := tx.ExecContext(gctx, stmt); err != nil {
				// Only the statement that aborted the transaction is reported.
				var pqErr *pq.Error
				if errors.As(err, &pqErr) && pqErr.Code == pgerrcode.InFailedSQLTransaction {
					return nil
				}
				return resetErr("drop-schema", schema, err)
			}
			if schema == "public" {
				droppedPublic.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var types int
	if err := tx.QueryRowContext(ctx, countEnumsQuery).Scan(&types); err != nil {
		return nil, resetErr("count-types", "", err)
	}
	if types > 0 {
		if _, err := tx.ExecContext(ctx, dropEnumsStatement); err != nil {
			return nil, resetErr("drop-types", "", err)
		}
	}

	if droppedPublic.Load() {
		if _, err := tx.ExecContext(ctx, recreatePublicStatement); err != nil {
			return nil, resetErr("recreate-public", "public", err)
		}
	}

	return &ResetReport{Schemas: schemas, Types: types}, nil
}

func listSchemas(ctx context.Context, tx Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, listSchemasQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if _, ok := systemSchemas[name]; ok {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}
