package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sandrolain/responsecache/test"
)

func testURI() string {
	if uri := os.Getenv("MONGODB_TEST_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

func TestMongoDBStore(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, Config{
		URI:        testURI(),
		Database:   "responsecache_test",
		Collection: "store_test",
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Skipf("Skipping MongoDB tests: %v", err)
	}
	defer store.Close()

	if err := store.collection.Drop(ctx); err != nil {
		t.Fatalf("failed to drop collection: %v", err)
	}

	test.Store(t, store)
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Config{Database: "db"}); err == nil {
		t.Error("expected an error without a URI")
	}
	if _, err := New(ctx, Config{URI: "mongodb://localhost:27017"}); err == nil {
		t.Error("expected an error without a database")
	}
	if _, err := NewWithClient(nil, "db", "", Config{}); err == nil {
		t.Error("expected an error without a client")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Collection != "responsecache" || cfg.KeyPrefix != "cache:" || cfg.Timeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
