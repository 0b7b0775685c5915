// Package sqlstore is a storage.Backend on a SQL database. SQLite is the
// device-local option; PostgreSQL is reachable through either pgx or lib/pq.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers "postgres"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/vietddude/kitchenline/internal/infra/storage"
	"github.com/vietddude/kitchenline/internal/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds SQL connection configuration.
type Config struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DB is the SQL key/value backend.
type DB struct {
	db     *sqlx.DB
	driver string
}

var _ storage.Backend = (*DB)(nil)

// NewDB opens the database, applies the embedded migrations and returns a
// ready backend.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection avoids "database is locked" and keeps :memory:
		// databases alive for the lifetime of the pool.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		} else {
			db.SetMaxOpenConns(10)
		}
		if cfg.MinConns > 0 {
			db.SetMaxIdleConns(cfg.MinConns)
		} else {
			db.SetMaxIdleConns(2)
		}
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db.DB, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return &DB{db: db, driver: driver}, nil
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverPgx, DriverPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s. Must be sqlite, pgx or postgres", driver)
	}
}

func migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (d *DB) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := d.db.Rebind(`SELECT store_value FROM kv_store WHERE store_key = ?`)
	if err := d.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (d *DB) Set(ctx context.Context, key, value string) error {
	query := d.db.Rebind(`INSERT INTO kv_store (store_key, store_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (store_key) DO UPDATE SET store_value = excluded.store_value, updated_at = excluded.updated_at`)
	if _, err := d.db.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (d *DB) Remove(ctx context.Context, key string) error {
	query := d.db.Rebind(`DELETE FROM kv_store WHERE store_key = ?`)
	if _, err := d.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (d *DB) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM kv_store WHERE store_key IN (?)`, keys)
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return nil
}

// Ping checks if the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string {
	return d.driver
}

// StartMetricsCollector starts a background goroutine to collect pool metrics.
func (d *DB) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := d.db.Stats()
				if stats.MaxOpenConnections > 0 {
					usage := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100
					metrics.StoragePoolUsage.Set(usage)
				}
			}
		}
	}()
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
