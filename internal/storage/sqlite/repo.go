package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"catalogetl/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no BIT type; BOOLEAN columns get NUMERIC affinity and bool values
// are stored as 0/1 by the driver.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database file named by cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable implements storage.Repository.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	createSQL, err := buildCreateSQL(spec)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(spec.Name)); err != nil {
		return 0, fmt.Errorf("sqlite: drop %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("sqlite: create %s: %w", spec.Name, err)
	}

	var total int64
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, buildInsertSQL(spec.Name, spec.ColumnNames()))
		if err != nil {
			return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return 0, fmt.Errorf("sqlite: insert row %d into %s: %w", i+1, spec.Name, err)
			}
			total++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return total, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqliteType(c storage.ColumnSpec) (string, error) {
	switch c.Type {
	case storage.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Length), nil
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeFloat:
		return "REAL", nil
	case storage.TypeInteger:
		return "INTEGER", nil
	case storage.TypeBoolean:
		return "BOOLEAN", nil
	default:
		return "", fmt.Errorf("sqlite: column %s: unsupported type %q", c.Name, c.Type)
	}
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := sqliteType(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, sqlIdent(c.Name)+" "+typ)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", sqlIdent(t.Name), strings.Join(parts, ", ")), nil
}

func buildInsertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlIdent(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

var _ storage.Repository = (*Repo)(nil)
