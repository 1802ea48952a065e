package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrateUp applies pending migrations on a dedicated connection, since
// closing the migrate instance closes the database it was given.
func migrateUp(d dialect, driverName, dsn string) error {
	migrateDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	src, err := iofs.New(migrationsFS, "migrations/"+d.String())
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	var m *migrate.Migrate
	switch d {
	case dialectPostgres:
		driver, derr := migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
		if derr != nil {
			return fmt.Errorf("create pgx migrate driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx5", driver)
	default:
		driver, derr := migratesqlite.WithInstance(migrateDB, &migratesqlite.Config{})
		if derr != nil {
			return fmt.Errorf("create sqlite migrate driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
	}
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
