package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"catalogetl/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

ReplaceTable runs DROP TABLE IF EXISTS, CREATE TABLE and a COPY of all rows
inside one transaction. Postgres DDL is transactional, so a failed COPY leaves
the previous table in place.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// ReplaceTable implements storage.Repository.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	dropSQL, createSQL, err := buildReplaceDDL(spec)
	if err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, dropSQL); err != nil {
		return 0, fmt.Errorf("postgres: drop %s: %w", spec.Name, err)
	}
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("postgres: create %s: %w", spec.Name, err)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, copyTableName(spec.Name), spec.ColumnNames(), pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("postgres: copy into %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

func buildReplaceDDL(t storage.TableSpec) (dropSQL, createSQL string, err error) {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := pgType(c)
		if err != nil {
			return "", "", err
		}
		parts = append(parts, pgIdent(c.Name)+" "+typ)
	}
	name := pgTableIdent(t.Name)
	dropSQL = fmt.Sprintf("DROP TABLE IF EXISTS %s;", name)
	createSQL = fmt.Sprintf("CREATE TABLE %s (%s);", name, strings.Join(parts, ", "))
	return dropSQL, createSQL, nil
}

func pgType(c storage.ColumnSpec) (string, error) {
	switch c.Type {
	case storage.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Length), nil
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeFloat:
		return "DOUBLE PRECISION", nil
	case storage.TypeInteger:
		return "INTEGER", nil
	case storage.TypeBoolean:
		return "BOOLEAN", nil
	default:
		return "", fmt.Errorf("postgres: column %s: unsupported type %q", c.Name, c.Type)
	}
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// splitQualifiedName splits "schema.table". Anything else is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func copyTableName(name string) pgx.Identifier {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

var _ storage.Repository = (*Repo)(nil)
