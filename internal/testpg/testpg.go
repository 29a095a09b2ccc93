// Package testpg spins up a disposable PostgreSQL instance for metadata-store
// tests, adapted from the teacher's test/database and test/util helpers (ent
// + shared-schema testcontainer) to pkg/metadata's plain pgxpool.Pool and
// per-test container instead of a shared schema, since golang-migrate runs
// its own schema_migrations bookkeeping per database rather than per search
// path.
package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/metadata"
)

// NewTestClient returns a metadata.Client backed by a fresh PostgreSQL
// database with migrations already applied.
func NewTestClient(t *testing.T) *metadata.Client {
	t.Helper()
	ctx := context.Background()

	cfg := config.DatabaseConfig{
		User:            "thorium",
		Password:        "thorium",
		Database:        "thorium_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.User),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("testpg: failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	cfg.Host = host
	cfg.Port = port.Int()

	client, err := metadata.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}
