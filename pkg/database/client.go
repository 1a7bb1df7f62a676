// Package database provides the PostgreSQL connection pool and migration
// utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
)

// Client wraps the pgx connection pool and a database/sql handle used by
// golang-migrate and pool health reporting.
type Client struct {
	pool *pgxpool.Pool
	db   *stdsql.DB
}

// Pool returns the pgx connection pool used by the service layer.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// DB returns the database/sql handle for health checks and migrations.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// ConnString returns the DSN, used by the NOTIFY listener's dedicated
// connection.
func (c *Client) ConnString() string {
	return c.pool.Config().ConnString()
}

// NewClient opens the connection pool, verifies connectivity, and applies
// pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := cfg.DSN()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Separate database/sql handle for golang-migrate; kept open for
	// health statistics afterwards.
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)

	if err := runMigrations(db, cfg); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{pool: pool, db: db}, nil
}

// Close releases both connection handles.
func (c *Client) Close() error {
	c.pool.Close()
	return c.db.Close()
}
