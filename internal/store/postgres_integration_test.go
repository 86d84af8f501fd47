//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("event_sink_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := OpenPostgres(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_IdempotencyAndOrdering(t *testing.T) {
	if os.Getenv("INTEGRATION") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION=1 to run.")
	}

	s := setupPostgresStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	ids := make([]string, 0, 3)
	for i, v := range []string{"A", "B", "C"} {
		id, created, err := s.InsertOrGetExisting(ctx, testRecord(v, int64(i), base))
		require.NoError(t, err)
		require.True(t, created)
		ids = append(ids, id)
	}

	id, created, err := s.InsertOrGetExisting(ctx, testRecord("B", 1, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ids[1], id)

	records, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, values(records))
}
