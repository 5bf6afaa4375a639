// Package sqlite provides a SQLite backed responsecache.Store using the
// pure Go glebarez/go-sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/go-sqlite"

	"github.com/sandrolain/responsecache"
)

// MemoryDSN opens a shared in-memory database.
const MemoryDSN = "file::memory:?cache=shared"

// SQLite primary result codes that mean the database cannot take writes.
const (
	codePerm     = 3
	codeReadOnly = 8
	codeFull     = 13
	codeCantOpen = 14
)

// Store is an implementation of responsecache.Store that keeps entries in a
// single SQLite table. Writes are serialized.
type Store struct {
	db     *sql.DB
	writes sync.Mutex
	closed atomic.Bool
}

// New opens the database at dsn, creating the table when missing. An empty
// dsn opens MemoryDSN.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", dsn, err)
	}
	s, err := NewWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB returns a Store using db, creating the table when missing.
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responsecache (
			id TEXT PRIMARY KEY,
			modified INTEGER NOT NULL,
			status INTEGER NOT NULL,
			headers BLOB NOT NULL,
			body BLOB NOT NULL
		)`,
		`PRAGMA journal_mode=WAL`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, wrapWriteErr("sqlite init", err)
		}
	}
	return &Store{db: db}, nil
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	var (
		modified int64
		status   int
		header   []byte
		body     []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT modified, status, headers, body FROM responsecache WHERE id = ?`, id,
	).Scan(&modified, &status, &header, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("sqlite store get failed for id %q: %w", id, err)
	}

	h, err := responsecache.DecodeHeader(header)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("sqlite store id %q: %w", id, err)
	}
	return responsecache.Entry{
		Modified: time.Unix(modified, 0),
		Status:   status,
		Header:   h,
		Body:     body,
	}, true, nil
}

// Set replaces the row under id.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	if s.closed.Load() {
		return fmt.Errorf("sqlite store set failed for id %q: %w: store closed", id, responsecache.ErrStorageUnavailable)
	}
	entry = entry.Stamp(time.Now())
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	s.writes.Lock()
	defer s.writes.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responsecache (id, modified, status, headers, body) VALUES (?, ?, ?, ?, ?)`,
		id, entry.Modified.Unix(), entry.StatusCode(), responsecache.EncodeHeader(entry.Header), body,
	)
	if err != nil {
		return wrapWriteErr(fmt.Sprintf("sqlite store set failed for id %q", id), err)
	}
	return nil
}

// Len returns the number of stored rows.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responsecache`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

func wrapWriteErr(msg string, err error) error {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case codePerm, codeReadOnly, codeFull, codeCantOpen:
			return fmt.Errorf("%s: %w: %w", msg, responsecache.ErrStorageUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
