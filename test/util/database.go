//go:build integration

// Package util provides database helpers for integration tests.
package util

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
	schemaOnce    sync.Once
	schemaErr     error
)

// SetupTestPool starts (once per package) a PostgreSQL testcontainer,
// applies the schema, and returns a pgx pool. Each test gets the shared
// database; tests must use unique ids for isolation.
func SetupTestPool(t *testing.T, schemaSQL string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	containerOnce.Do(func() {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("painscope_test"),
			postgres.WithUsername("painscope"),
			postgres.WithPassword("painscope"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		sharedConnStr, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr, "failed to start postgres container")

	pool, err := pgxpool.New(ctx, sharedConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	if schemaSQL != "" {
		schemaOnce.Do(func() {
			_, schemaErr = pool.Exec(ctx, schemaSQL)
		})
		require.NoError(t, schemaErr, "failed to apply schema")
	}
	return pool
}
