package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// OpenOptions selects and locates the SQL backend.
type OpenOptions struct {
	Driver      string // sqlite (default) or postgres
	SQLitePath  string
	PostgresDSN string
}

// OpenSQL opens the configured database and brings its schema up to date.
func OpenSQL(ctx context.Context, opts OpenOptions) (*sql.DB, string, error) {
	db, driver, err := OpenRaw(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	if err := MigrateUp(db, driver); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, driver, nil
}

// OpenRaw opens the database without touching the schema. The migrate
// command uses it so down and version see the schema as-is.
func OpenRaw(ctx context.Context, opts OpenOptions) (*sql.DB, string, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite:
		db, err := openSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		return db, DriverSQLite, nil
	case DriverPostgres:
		if opts.PostgresDSN == "" {
			return nil, "", errors.New("store: postgres driver selected but no DSN configured")
		}
		db, err := sql.Open("pgx", opts.PostgresDSN)
		if err != nil {
			return nil, "", fmt.Errorf("store: open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("store: ping postgres: %w", err)
		}
		return db, DriverPostgres, nil
	default:
		return nil, "", fmt.Errorf("store: unknown driver %q", driver)
	}
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("store: no sqlite path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// Pragmas apply per connection; a single connection keeps them in force
	// and sidesteps writer contention.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return db, nil
}

// MigrateUp applies all pending migrations for the driver.
func MigrateUp(db *sql.DB, driver string) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back every migration. Used by the migrate command only.
func MigrateDown(db *sql.DB, driver string) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate down: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(db *sql.DB, driver string) (uint, bool, error) {
	m, err := newMigrator(db, driver)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("store: load migrations: %w", err)
	}
	switch driver {
	case DriverSQLite:
		d, err := msqlite.WithInstance(db, &msqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("store: sqlite migrator: %w", err)
		}
		return migrate.NewWithInstance("iofs", source, driver, d)
	case DriverPostgres:
		d, err := mpostgres.WithInstance(db, &mpostgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("store: postgres migrator: %w", err)
		}
		return migrate.NewWithInstance("iofs", source, driver, d)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
