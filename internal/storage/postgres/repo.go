// Package postgres implements the raw store on Postgres using pgx v5.
// Records are written with COPY; DDL and typing SQL go through the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	gddl "destsync/internal/ddl"
	"destsync/internal/record"
	"destsync/internal/storage"
	pgddl "destsync/internal/storage/postgres/ddl"
)

// Kind is the registered storage kind.
const Kind = "postgres"

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool and migrations
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

func (r *Repository) Kind() string { return Kind }

// CreateSchemaIfNotExists implements storage.Repository.
func (r *Repository) CreateSchemaIfNotExists(ctx context.Context, schema string) error {
	stmt, err := pgddl.BuildCreateSchemaSQL(schema)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

// CreateTableIfNotExists creates the raw table shape for t.
func (r *Repository) CreateTableIfNotExists(ctx context.Context, t storage.Table) error {
	stmt, err := pgddl.RawTableSQL(t)
	if err != nil {
		return err
	}
	return r.Exec(ctx, stmt)
}

func (r *Repository) TruncateTableQuery(t storage.Table) string {
	return pgddl.TruncateSQL(t)
}

// ExecuteTransaction runs statements inside pgx.BeginFunc, which rolls back
// if any statement fails.
func (r *Repository) ExecuteTransaction(ctx context.Context, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i, pgError(err))
			}
		}
		return nil
	})
}

// InsertRecords COPYs recs into the raw table t.
func (r *Repository) InsertRecords(ctx context.Context, t storage.Table, generationID int64, recs []record.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows, err := storage.RawRows(recs, generationID)
	if err != nil {
		return 0, err
	}
	n, err := r.pool.CopyFrom(ctx, identifier(t), gddl.InsertColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", t, pgError(err))
	}
	return n, nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return pgError(err)
}

// identifier converts a table into a pgx.Identifier, skipping an empty
// namespace.
func identifier(t storage.Table) pgx.Identifier {
	if t.Namespace == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Namespace, t.Name}
}

// pgError folds the server detail of a *pgconn.PgError into the message while
// keeping the original error in the chain.
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}
