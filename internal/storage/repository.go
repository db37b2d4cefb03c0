// Package storage selects a persistence backend from DATABASE_URL.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/domain/todos"
	"github.com/siteflow/server/internal/domain/users"
	"github.com/siteflow/server/internal/storage/postgres"
	"github.com/siteflow/server/internal/storage/sqlite"
)

// Store is an open backend. Repositories returned by it share its pool.
type Store interface {
	Todos() todos.Repository
	Users() users.Repository
	Dialect() string
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// DialectOf maps a DATABASE_URL to the backend that serves it.
func DialectOf(databaseURL string) (string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Dialect, nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return sqlite.Dialect, nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_URL scheme (want postgres:// or sqlite://)")
	}
}

// Open connects to the configured database and, when AutoMigrate is set,
// applies pending migrations before returning.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	dialect, err := DialectOf(cfg.URL)
	if err != nil {
		return nil, err
	}

	var store Store
	switch dialect {
	case postgres.Dialect:
		store, err = postgres.Open(ctx, cfg.URL, cfg.MaxConnections)
	case sqlite.Dialect:
		path, perr := sqlite.Path(cfg.URL)
		if perr != nil {
			return nil, perr
		}
		store, err = sqlite.Open(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := MigrateUp(store, cfg.URL); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// MigrateUp applies the bundled migrations for store's dialect. Postgres
// migrations run on their own connection from databaseURL; SQLite reuses the
// store handle so in-memory databases see the schema.
func MigrateUp(store Store, databaseURL string) error {
	switch s := store.(type) {
	case *postgres.Store:
		return postgres.MigrateUp(databaseURL)
	case *sqlite.Store:
		return sqlite.MigrateUp(s.DB())
	default:
		return fmt.Errorf("migrate: unsupported store %T", store)
	}
}

func MigrateDown(store Store, databaseURL string, steps int) error {
	switch s := store.(type) {
	case *postgres.Store:
		return postgres.MigrateDown(databaseURL, steps)
	case *sqlite.Store:
		return sqlite.MigrateDown(s.DB(), steps)
	default:
		return fmt.Errorf("migrate: unsupported store %T", store)
	}
}

func MigrationVersion(store Store, databaseURL string) (uint, bool, error) {
	switch s := store.(type) {
	case *postgres.Store:
		return postgres.MigrationVersion(databaseURL)
	case *sqlite.Store:
		return sqlite.MigrationVersion(s.DB())
	default:
		return 0, false, fmt.Errorf("migrate: unsupported store %T", store)
	}
}
