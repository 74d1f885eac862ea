//go:build integration

package postgres

import (
	"context"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/RealZimboGuy/leadflow/test/integration/common"
)

func runTestWithSetup(t *testing.T, testFunc func(t *testing.T, port int)) {
	ctx := context.Background()
	container := setupPostgresTestInstance(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()
	testFunc(t, common.NextPort())
}

// setupPostgresTestInstance starts a database and points the LFLOW_ settings at it.
func setupPostgresTestInstance(t *testing.T, ctx context.Context) *postgres.PostgresContainer {
	t.Helper()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("LFLOW_DATABASE_TYPE", "POSTGRES")
	t.Setenv("LFLOW_DATABASE_URL", dsn)
	return pgContainer
}
