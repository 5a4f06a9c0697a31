// Package dbtest provides a migrated Postgres store for integration tests.
//
// TEST_POSTGRES_DSN selects an existing server. Without it a postgres
// container is started once per test binary through testcontainers-go.
// Tests are skipped when neither is reachable. Tests share the database,
// so they must scope their rows by fresh owner ids instead of truncating.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	dbembed "github.com/dmirchev92/stp/db"
	"github.com/dmirchev92/stp/internal/db"
)

const (
	image    = "postgres:16-alpine"
	user     = "stp"
	password = "stp"
	database = "stp_test"
)

var (
	setupOnce sync.Once
	sharedDSN string
	setupErr  error
)

// Open returns a Store over the shared test database, closing its pool when t ends.
func Open(t *testing.T) *db.PgStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skip integration test in -short mode")
	}

	setupOnce.Do(func() {
		sharedDSN, setupErr = resolveDSN(context.Background())
		if setupErr != nil {
			return
		}
		setupErr = db.MigrateUpDSN(nil, sharedDSN, dbembed.Migrations())
	})
	if setupErr != nil {
		t.Skipf("skip integration test: %v", setupErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, sharedDSN)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return db.NewPgStore(pool)
}

// startContainer is replaced in tests.
var startContainer = runPostgresContainer

func resolveDSN(ctx context.Context) (dsn string, err error) {
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return dsn, nil
	}
	// testcontainers panics when no docker host can be found.
	defer func() {
		if r := recover(); r != nil {
			dsn, err = "", fmt.Errorf("docker unavailable: %v", r)
		}
	}()
	return startContainer(ctx)
}

func runPostgresContainer(ctx context.Context) (string, error) {
	// ryuk is unreliable in CI sandboxes; the container dies with the docker daemon session instead.
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       database,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), database), nil
}
