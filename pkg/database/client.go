// Package database provides the pgx/v5 connection pool and migration
// runner shared by every repository in pkg/repository.
package database

import (
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"context"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only for migrations

	"github.com/codeready-toolchain/meshgate/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the application's pgx connection pool.
type Client struct {
	Pool *pgxpool.Pool
}

// NewClient opens the connection pool described by cfg, runs pending
// migrations, and returns a ready-to-use Client. The migration runner uses
// a short-lived database/sql connection (golang-migrate does not speak
// pgxpool directly); the pool used for application queries is separate.
func NewClient(ctx context.Context, cfg *config.DatabaseConfig) (*Client, error) {
	dsn := dsnFor(cfg)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dsn, cfg.Database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// NewClientFromPool wraps an existing, caller-built pool; unlike
// NewClient it runs no migrations.
func NewClientFromPool(pool *pgxpool.Pool) *Client {
	return &Client{Pool: pool}
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

func dsnFor(cfg *config.DatabaseConfig) string {
	return DSN(cfg)
}

// DSN renders the connection string for cfg. Exposed for callers that need
// their own connection outside the pool — notably the bus's dedicated
// LISTEN connection (pkg/bus.NewPostgresBus).
func DSN(cfg *config.DatabaseConfig) string {
	password := os.Getenv(cfg.PasswordEnv)
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, password, cfg.Database, cfg.SSLMode,
	)
}

func runMigrations(dsn, databaseName string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found, binary built incorrectly")
	}

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
