//go:build integration

package postgresql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:18.0-alpine3.22"
	postgresPassword = "testpassword"
	postgresUser     = "testuser"
	postgresDB       = "testdb"
)

// setupPostgreSQLContainer starts a PostgreSQL container and returns the connection string
func setupPostgreSQLContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host, port.Port(), postgresDB)
}

func TestPostgreSQLIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connString := setupPostgreSQLContainer(ctx, t)

	store, err := New(ctx, connString, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	test.Store(t, store)

	t.Run("malformed headers", func(t *testing.T) {
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			t.Fatal(err)
		}
		defer pool.Close()

		_, err = pool.Exec(ctx, `INSERT INTO `+DefaultTableName+` (id, modified, status, headers, body) VALUES ($1, now(), 200, $2, $3)`,
			DefaultKeyPrefix+"broken", []byte("not a header"), []byte{})
		if err != nil {
			t.Fatal(err)
		}

		_, _, err = store.Get(ctx, "broken")
		if !errors.Is(err, responsecache.ErrMalformedEntry) {
			t.Fatalf("err = %v, want ErrMalformedEntry", err)
		}
	})

	t.Run("modified column", func(t *testing.T) {
		modified := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)
		if err := store.Set(ctx, "dated", responsecache.Entry{Modified: modified, Status: 200, Body: []byte("x")}); err != nil {
			t.Fatal(err)
		}
		var got time.Time
		err := store.db.QueryRow(ctx, `SELECT modified FROM `+DefaultTableName+` WHERE id = $1`, DefaultKeyPrefix+"dated").Scan(&got)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(modified) {
			t.Fatalf("modified = %v, want %v", got, modified)
		}
	})

	t.Run("read-only session", func(t *testing.T) {
		pool, err := pgxpool.New(ctx, connString+"&default_transaction_read_only=on")
		if err != nil {
			t.Fatal(err)
		}
		ro, err := NewWithPool(pool, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer ro.Close()

		if _, _, err := ro.Get(ctx, "dated"); err != nil {
			t.Fatalf("read on read-only session: %v", err)
		}
		err = ro.Set(ctx, "denied", responsecache.Entry{Status: 200})
		if !errors.Is(err, responsecache.ErrStorageUnavailable) {
			t.Fatalf("err = %v, want ErrStorageUnavailable", err)
		}
	})
}
