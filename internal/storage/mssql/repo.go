// Package mssql implements the raw store on Microsoft SQL Server using the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	gddl "destsync/internal/ddl"
	"destsync/internal/record"
	"destsync/internal/storage"
	msddl "destsync/internal/storage/mssql/ddl"
)

// Kind is the registered storage kind.
const Kind = "mssql"

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

func (r *Repository) Kind() string { return Kind }

func (r *Repository) CreateSchemaIfNotExists(ctx context.Context, schema string) error {
	stmt, err := msddl.BuildCreateSchemaSQL(schema)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

func (r *Repository) CreateTableIfNotExists(ctx context.Context, t storage.Table) error {
	stmt, err := msddl.RawTableSQL(t)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

func (r *Repository) TruncateTableQuery(t storage.Table) string {
	return msddl.TruncateSQL(t)
}

func (r *Repository) ExecuteTransaction(ctx context.Context, statements []string) error {
	return storage.RunInTx(ctx, r.db, statements)
}

// InsertRecords bulk-copies recs into the raw table t within one transaction.
func (r *Repository) InsertRecords(ctx context.Context, t storage.Table, generationID int64, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := storage.RawRows(recs, generationID)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(msddl.QuoteTable(t), mssql.BulkOptions{}, gddl.InsertColumns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}
