//go:build integration

package redis

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	skipIntegrationMsg = "skipping integration test in short mode"
	redisImage         = "redis:7-alpine"
)

// Redis endpoint shared across all tests.
var sharedRedisEndpoint string

// TestMain sets up the Redis container once for all tests.
func TestMain(m *testing.M) {
	flag.Parse()

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, redisImage)
	if err != nil {
		panic("failed to start Redis container: " + err.Error())
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		panic("failed to get Redis endpoint: " + err.Error())
	}
	sharedRedisEndpoint = endpoint

	code := m.Run()

	if err := testcontainers.TerminateContainer(container); err != nil {
		panic("failed to terminate Redis container: " + err.Error())
	}
	os.Exit(code)
}

func setupRedisStore(t *testing.T, expiration time.Duration) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := New(ctx, Config{Address: sharedRedisEndpoint, Expiration: expiration})
	if err != nil {
		t.Fatalf("failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.client.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("failed to flush Redis: %v", err)
	}
	return store
}

func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}
	test.Store(t, setupRedisStore(t, 0))
}

func TestRedisIntegrationExpiration(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	store := setupRedisStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, "ttl", responsecache.Entry{Body: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	ttl, err := store.client.TTL(ctx, store.key("ttl")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL %v", ttl)
	}
}

func TestRedisIntegrationMalformedEntry(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	store := setupRedisStore(t, 0)
	ctx := context.Background()

	if err := store.client.HSet(ctx, store.key("broken"), fieldModified, "yesterday").Err(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Get(ctx, "broken"); err == nil {
		t.Fatal("expected a malformed entry error")
	}
}

func TestRedisIntegrationClosedClient(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	client := redis.NewClient(&redis.Options{Addr: sharedRedisEndpoint})
	store := NewWithClient(client, "", 0)
	_ = client.Close()

	err := store.Set(context.Background(), "id", responsecache.Entry{Body: []byte("x")})
	if err == nil {
		t.Fatal("expected an error from a closed client")
	}
}
