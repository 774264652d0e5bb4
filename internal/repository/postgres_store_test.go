package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"BarFeed/pkg/postgres"
)

// setupPostgres starts a disposable PostgreSQL container with the schema applied.
func setupPostgres(t *testing.T) *postgres.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("barfeed"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn, postgres.WithMaxConns(4))
	require.NoError(t, err, "failed to create pool")
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, pool.Migrate(ctx))
	return pool
}

func TestPostgresStores(t *testing.T) {
	pool := setupPostgres(t)

	t.Run("bars", func(t *testing.T) {
		testBarStore(t, NewPostgresBarStore(pool, "TEST"))
	})
	t.Run("runs", func(t *testing.T) {
		testRunStore(t, NewPostgresRunStore(pool, "TEST"))
	})
	t.Run("symbols are isolated", func(t *testing.T) {
		other := NewPostgresBarStore(pool, "OTHER")
		n, err := other.CountSince(context.Background(), t0)
		require.NoError(t, err)
		require.Zero(t, n)
	})
}
