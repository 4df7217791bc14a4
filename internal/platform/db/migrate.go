package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every pending migration for the database's dialect.
// Returns nil when the schema is already current.
func (d *DB) Migrate(logger zerolog.Logger) error {
	m, err := d.newMigrate(logger)
	if err != nil {
		return err
	}
	// m.Close would also close the shared *sql.DB, so it is left to the GC.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version and dirty flag.
func (d *DB) MigrationVersion(logger zerolog.Logger) (uint, bool, error) {
	m, err := d.newMigrate(logger)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (d *DB) newMigrate(logger zerolog.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+string(d.dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var driver database.Driver
	switch d.dialect {
	case Postgres:
		driver, err = postgres.WithInstance(d.DB.DB, &postgres.Config{})
	case SQLite:
		driver, err = sqlite.WithInstance(d.DB.DB, &sqlite.Config{})
	default:
		err = fmt.Errorf("unsupported dialect %q", d.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d.dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{logger: logger}
	return m, nil
}

// migrateLogger adapts zerolog to migrate.Logger.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info().Msgf("[migrate] "+format, v...)
}

func (l migrateLogger) Verbose() bool { return false }
