package state

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsPath = "migrations/cloudassign"

//go:embed migrations/cloudassign/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// MigrateDB applies all pending migrations to db.
func MigrateDB(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate %s: nil db", migrationsPath)
	}

	sourceDriver, err := iofs.New(migrationsFS, migrationsPath)
	if err != nil {
		return fmt.Errorf("migrate %s: init source: %w", migrationsPath, err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("migrate %s: init db driver: %w", migrationsPath, err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("migrate %s: init migrator: %w", migrationsPath, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: up: %w", migrationsPath, err)
	}
	return nil
}
