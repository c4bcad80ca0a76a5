// Package sqlite implements the raw store on SQLite using database/sql and
// modernc.org/sqlite. It writes chunked multi-row INSERTs inside one
// transaction per batch; SQLite has no bulk-load API like Postgres COPY.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	gddl "destsync/internal/ddl"
	"destsync/internal/record"
	"destsync/internal/storage"
	sqliteddl "destsync/internal/storage/sqlite/ddl"
)

// Kind is the registered storage kind.
const Kind = "sqlite"

// chunkRows keeps one INSERT well under SQLite's bind-variable limit.
const chunkRows = 500

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:destsync.db?cache=shared"
	//   "destsync.db"
	DSN string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
//
// The pool is limited to one connection: SQLite serializes writers anyway,
// and a single connection keeps ":memory:" databases shared.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;")

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

func (r *Repository) Kind() string { return Kind }

// CreateSchemaIfNotExists is a no-op: namespaces are folded into table names.
func (r *Repository) CreateSchemaIfNotExists(context.Context, string) error { return nil }

func (r *Repository) CreateTableIfNotExists(ctx context.Context, t storage.Table) error {
	stmt, err := sqliteddl.RawTableSQL(t)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

func (r *Repository) TruncateTableQuery(t storage.Table) string {
	return sqliteddl.TruncateSQL(t)
}

func (r *Repository) ExecuteTransaction(ctx context.Context, statements []string) error {
	if err := storage.RunInTx(ctx, r.db, statements); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// InsertRecords writes recs into t in chunks of chunkRows inside a single
// transaction, so a batch lands completely or not at all.
func (r *Repository) InsertRecords(ctx context.Context, t storage.Table, generationID int64, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := storage.RawRows(recs, generationID)
	if err != nil {
		return 0, err
	}

	quoted := make([]string, len(gddl.InsertColumns))
	for i, c := range gddl.InsertColumns {
		quoted[i] = sqliteddl.QuoteIdent(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		sqliteddl.QuoteIdent(sqliteddl.PhysicalName(t)), strings.Join(quoted, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	n, err := storage.InsertInChunks(ctx, rows, chunkRows, func(ctx context.Context, chunk [][]any) (int64, error) {
		stmt := prefix + storage.Placeholders(len(chunk), len(gddl.InsertColumns), storage.QuestionMark)
		res, err := tx.ExecContext(ctx, stmt, storage.Flatten(chunk)...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: insert into %s: %w", t, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// Exec executes an arbitrary SQL statement using the underlying connection.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// count returns the number of rows in t. Used by tests and diagnostics.
func (r *Repository) count(ctx context.Context, t storage.Table) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + sqliteddl.QuoteIdent(sqliteddl.PhysicalName(t))
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
