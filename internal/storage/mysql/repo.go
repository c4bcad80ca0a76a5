// Package mysql implements the raw store on MySQL using
// github.com/go-sql-driver/mysql. Batches are written as chunked multi-row
// INSERTs in one transaction.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	gddl "destsync/internal/ddl"
	"destsync/internal/record"
	"destsync/internal/storage"
	myddl "destsync/internal/storage/mysql/ddl"
)

// Kind is the registered storage kind.
const Kind = "mysql"

// chunkRows keeps statements below max_allowed_packet for typical payloads.
const chunkRows = 1000

// Config holds MySQL repository configuration.
type Config struct {
	DSN string // go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/db"
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository parses the DSN, opens a pool through mysql.NewConnector and
// returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC

	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

func (r *Repository) Kind() string { return Kind }

func (r *Repository) CreateSchemaIfNotExists(ctx context.Context, schema string) error {
	stmt, err := myddl.BuildCreateSchemaSQL(schema)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

func (r *Repository) CreateTableIfNotExists(ctx context.Context, t storage.Table) error {
	stmt, err := myddl.RawTableSQL(t)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

func (r *Repository) TruncateTableQuery(t storage.Table) string {
	return myddl.TruncateSQL(t)
}

func (r *Repository) ExecuteTransaction(ctx context.Context, statements []string) error {
	return storage.RunInTx(ctx, r.db, statements)
}

// InsertRecords writes recs into t; all chunks commit together.
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
		quoted[i] = myddl.QuoteIdent(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", myddl.QuoteTable(t), strings.Join(quoted, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
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
		return 0, fmt.Errorf("insert into %s: %w", t, mysqlError(err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return mysqlError(err)
}

// mysqlError adds the server error number to driver errors.
func mysqlError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return fmt.Errorf("mysql %d: %w", me.Number, err)
	}
	return err
}
