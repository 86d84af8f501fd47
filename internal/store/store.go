package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnavailable marks transient store failures. Callers retry these.
var ErrUnavailable = errors.New("store unavailable")

//go:embed migrations
var migrationsFS embed.FS

// Writer is the write side of a store
type Writer interface {
	// InsertOrGetExisting inserts rec unless a record with the same source
	// offset exists, in which case the existing id is returned with created=false.
	InsertOrGetExisting(ctx context.Context, rec Record) (id string, created bool, err error)
}

// Reader is the read side of a store
type Reader interface {
	// ListRecent returns up to limit records, newest first. Records with the
	// same timestamp are ordered most recently inserted first.
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// Store is a durable append-only record collection
type Store interface {
	Writer
	Reader
	Ping(ctx context.Context) error
	Close() error
}

// Open opens the store for the given driver and applies pending migrations
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

func runMigrations(driver string, drv database.Driver) error {
	src, err := iofs.New(migrationsFS, path.Join("migrations", driver))
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrUnavailable, err)
}
