// Package storage contains storage-agnostic contracts for the raw store and
// a registry of backend factories.
//
// Backends (postgres, mysql, mssql, sqlite) register a Factory at init time;
// callers obtain a Repository via New without importing the backend.
package storage

import (
	"context"

	"destsync/internal/record"
)

// Table identifies a physical table. Namespace is the schema (or database for
// MySQL); it may be empty for backends without schemas.
type Table struct {
	Namespace string
	Name      string
}

// FQN returns the dotted "namespace.name" form, or just the name when the
// namespace is empty.
func (t Table) FQN() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t Table) String() string { return t.FQN() }

// Repository is the persistence layer the destination sequences calls to.
// It never decides when to write; it only knows how.
type Repository interface {
	// Kind returns the registered storage kind, e.g. "postgres".
	Kind() string

	// CreateSchemaIfNotExists is idempotent.
	CreateSchemaIfNotExists(ctx context.Context, schema string) error

	// CreateTableIfNotExists creates a raw table if absent. It is idempotent.
	CreateTableIfNotExists(ctx context.Context, table Table) error

	// TruncateTableQuery renders the statement that empties table. It does
	// not execute anything.
	TruncateTableQuery(table Table) string

	// ExecuteTransaction runs all statements in one transaction; either all
	// of them apply or none do.
	ExecuteTransaction(ctx context.Context, statements []string) error

	// InsertRecords writes recs into the raw table in a single batch and
	// returns the number of rows written.
	InsertRecords(ctx context.Context, table Table, generationID int64, recs []record.Record) (int64, error)

	// Exec executes an arbitrary statement (DDL or typing SQL).
	Exec(ctx context.Context, sql string) error

	Close()
}

// Migrator is implemented by repositories that manage their own internal
// state tables through versioned migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Config is the backend-agnostic connection configuration.
type Config struct {
	Kind string
	DSN  string
}
