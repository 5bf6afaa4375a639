package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "gocloud.dev/blob/fileblob" // Register file:// scheme
	"gocloud.dev/blob/memblob"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
)

func TestBlobStore(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{
		BucketURL: "mem://",
		KeyPrefix: "test/",
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close store: %v", err)
		}
	}()

	test.Store(t, store)
}

func TestBlobStoreFileBucket(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{BucketURL: "file://" + t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	test.Store(t, store)
}

func TestBlobStoreMalformedEntry(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	store := NewWithBucket(bucket, "", 0)
	if err := bucket.WriteAll(ctx, store.blobKey("broken"), []byte("garbage"), nil); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.Get(ctx, "broken")
	if !errors.Is(err, responsecache.ErrMalformedEntry) {
		t.Fatalf("err = %v, want ErrMalformedEntry", err)
	}
}

func TestBlobStoreClosedBucket(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	store := NewWithBucket(bucket, "", 0)
	_ = bucket.Close()

	err := store.Set(context.Background(), "id", responsecache.Entry{Body: []byte("x")})
	if !errors.Is(err, responsecache.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected an error without BucketURL or Bucket")
	}
}

func TestNewWithBucketDoesNotClose(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	store, err := New(context.Background(), Config{Bucket: bucket})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	ok, err := bucket.IsAccessible(context.Background())
	if err != nil || !ok {
		t.Fatalf("bucket not accessible after store Close: %v, %v", ok, err)
	}
}
