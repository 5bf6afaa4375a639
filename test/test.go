// Package test provides conformance checks shared by the Store implementations.
package test

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/sandrolain/responsecache"
)

// Store exercises a responsecache.Store implementation.
func Store(t *testing.T, store responsecache.Store) {
	t.Helper()
	ctx := context.Background()
	id := "testID"

	_, found, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("error getting id: %v", err)
	}
	if found {
		t.Fatal("retrieved entry before adding it")
	}

	entry := responsecache.Entry{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type": {"text/html; charset=utf-8"},
			"X-Multi":      {"one", "two"},
		},
		Body: []byte("<h1>some bytes</h1>\x00\xff"),
	}
	before := time.Now().Add(-time.Second)
	if err := store.Set(ctx, id, entry); err != nil {
		t.Fatalf("error setting id: %v", err)
	}

	got, found, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("error getting id: %v", err)
	}
	if !found {
		t.Fatal("could not retrieve an entry we just added")
	}
	if !bytes.Equal(got.Body, entry.Body) {
		t.Fatalf("retrieved body %q, want %q", got.Body, entry.Body)
	}
	for name, values := range entry.Header {
		if g := got.Header.Values(name); !slices.Equal(g, values) {
			t.Fatalf("header %s = %q, want %q", name, g, values)
		}
	}
	if got.StatusCode() != http.StatusOK {
		t.Fatalf("status = %d, want 200", got.StatusCode())
	}
	if got.Modified.Before(before.Truncate(time.Second)) || got.Modified.After(time.Now().Add(time.Second)) {
		t.Fatalf("write time %v not stamped by the store", got.Modified)
	}

	StoreModified(t, store)
	StoreOverwrite(t, store)
	StoreEmptyBody(t, store)
}

// StoreModified checks that an explicit modification time is persisted.
func StoreModified(t *testing.T, store responsecache.Store) {
	t.Helper()
	ctx := context.Background()
	id := "testModifiedID"
	modified := time.Date(2020, 5, 17, 8, 30, 0, 0, time.UTC)

	if err := store.Set(ctx, id, responsecache.Entry{Modified: modified, Body: []byte("pre-dated")}); err != nil {
		t.Fatalf("error setting pre-dated entry: %v", err)
	}
	got, found, err := store.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("pre-dated entry not found: found=%v err=%v", found, err)
	}
	if !got.Modified.Equal(modified) {
		t.Fatalf("modified = %v, want %v", got.Modified, modified)
	}
}

// StoreOverwrite checks that a second Set replaces the whole entry.
func StoreOverwrite(t *testing.T, store responsecache.Store) {
	t.Helper()
	ctx := context.Background()
	id := "testOverwriteID"

	first := responsecache.Entry{Header: http.Header{"X-First": {"1"}}, Body: []byte("first")}
	second := responsecache.Entry{Header: http.Header{"X-Second": {"2"}}, Body: []byte("second")}
	if err := store.Set(ctx, id, first); err != nil {
		t.Fatalf("error setting first entry: %v", err)
	}
	if err := store.Set(ctx, id, second); err != nil {
		t.Fatalf("error setting second entry: %v", err)
	}

	got, found, err := store.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("overwritten entry not found: found=%v err=%v", found, err)
	}
	if string(got.Body) != "second" {
		t.Fatalf("body = %q, want %q", got.Body, "second")
	}
	if got.Header.Get("X-First") != "" || got.Header.Get("X-Second") != "2" {
		t.Fatalf("headers were merged instead of replaced: %v", got.Header)
	}
}

// StoreEmptyBody checks that an entry with an empty body is still found.
func StoreEmptyBody(t *testing.T, store responsecache.Store) {
	t.Helper()
	ctx := context.Background()
	id := "testEmptyID"

	if err := store.Set(ctx, id, responsecache.Entry{Status: http.StatusNoContent}); err != nil {
		t.Fatalf("error setting empty entry: %v", err)
	}
	got, found, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("error getting empty entry: %v", err)
	}
	if !found {
		t.Fatal("empty entry reported as absent")
	}
	if len(got.Body) != 0 {
		t.Fatalf("body = %q, want empty", got.Body)
	}
}
