package redis

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping test; no server running at localhost:6379")
	}
	_ = client.FlushAll(ctx)

	test.Store(t, NewWithClient(client, "", 0))
}

func TestDecode(t *testing.T) {
	entry, err := decode(map[string]string{
		fieldModified: "1700000000",
		fieldStatus:   "200",
		fieldHeader:   "Content-Type: text/plain\r\n",
		fieldBody:     "hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Modified.Equal(time.Unix(1700000000, 0)) || entry.Status != http.StatusOK {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Header.Get("Content-Type") != "text/plain" || string(entry.Body) != "hello" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, fields := range []map[string]string{
		{fieldStatus: "200"},
		{fieldModified: "1", fieldStatus: "ok"},
		{fieldModified: "1", fieldStatus: "200", fieldHeader: "broken"},
	} {
		if _, err := decode(fields); !errors.Is(err, responsecache.ErrMalformedEntry) {
			t.Errorf("decode(%v) = %v, want ErrMalformedEntry", fields, err)
		}
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected an error without an address")
	}
}
