package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

// MigrationsTable is where golang-migrate tracks applied versions.
const MigrationsTable = "destsync_schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded migrations (state table, try_cast helpers).
// It is a no-op when the schema is already current.
func (r *Repository) Migrate(ctx context.Context) error {
	db, err := sql.Open("postgres", r.cfg.DSN)
	if err != nil {
		return fmt.Errorf("open migration db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration db: %w", err)
	}

	driver, err := mpg.WithInstance(db, &mpg.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
