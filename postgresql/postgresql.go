// Package postgresql provides a PostgreSQL backed responsecache.Store.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandrolain/responsecache"
)

var (
	// ErrNilPool is returned when a nil pool is provided
	ErrNilPool = errors.New("postgresql: pool cannot be nil")
	// ErrNilConn is returned when a nil connection is provided
	ErrNilConn = errors.New("postgresql: connection cannot be nil")
)

const (
	// DefaultTableName is the default table name for stored responses
	DefaultTableName = "responsecache"
	// DefaultKeyPrefix is the default prefix for cache ids
	DefaultKeyPrefix = "cache:"
)

// querier is satisfied by both *pgxpool.Pool and *pgx.Conn.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is an implementation of responsecache.Store that keeps responses in
// a PostgreSQL table, one row per cache id.
type Store struct {
	db        querier
	closer    func()
	tableName string
	keyPrefix string
	timeout   time.Duration
}

// Config holds the configuration for the PostgreSQL store.
type Config struct {
	// TableName is the name of the table holding entries (default: "responsecache")
	TableName string
	// KeyPrefix is the prefix added to every cache id (default: "cache:")
	KeyPrefix string
	// Timeout is the maximum time to wait for database operations (default: 5s)
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TableName: DefaultTableName,
		KeyPrefix: DefaultKeyPrefix,
		Timeout:   5 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	cfg := *c
	defaults := DefaultConfig()
	if cfg.TableName == "" {
		cfg.TableName = defaults.TableName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &cfg
}

func newStore(db querier, closer func(), config *Config) *Store {
	config = config.withDefaults()
	return &Store{
		db:        db,
		closer:    closer,
		tableName: pgx.Identifier{config.TableName}.Sanitize(),
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}
}

func (s *Store) key(id string) string {
	return s.keyPrefix + id
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		modified time.Time
		status   int
		header   []byte
		body     []byte
	)
	query := `SELECT modified, status, headers, body FROM ` + s.tableName + ` WHERE id = $1`
	err := s.db.QueryRow(ctx, query, s.key(id)).Scan(&modified, &status, &header, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("postgresql store get failed for id %q: %w", id, err)
	}

	h, err := responsecache.DecodeHeader(header)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("postgresql store id %q: %w", id, err)
	}
	return responsecache.Entry{
		Modified: time.Unix(modified.Unix(), 0),
		Status:   status,
		Header:   h,
		Body:     body,
	}, true, nil
}

// Set upserts the entry under id.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry = entry.Stamp(time.Now())
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	query := `
		INSERT INTO ` + s.tableName + ` (id, modified, status, headers, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			modified = EXCLUDED.modified,
			status = EXCLUDED.status,
			headers = EXCLUDED.headers,
			body = EXCLUDED.body
	`
	_, err := s.db.Exec(ctx, query, s.key(id), entry.Modified.UTC(), entry.StatusCode(),
		responsecache.EncodeHeader(entry.Header), body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && isUnwritable(pgErr.Code) {
			return fmt.Errorf("postgresql store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("postgresql store set failed for id %q: %w", id, err)
	}
	return nil
}

// isUnwritable reports whether the SQLSTATE means the table cannot accept
// writes regardless of retries.
func isUnwritable(code string) bool {
	switch code {
	case "25006", // read_only_sql_transaction
		"42501", // insufficient_privilege
		"53100": // disk_full
		return true
	}
	return false
}

// CreateTable creates the entries table if it doesn't exist.
func (s *Store) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
			id TEXT PRIMARY KEY,
			modified TIMESTAMPTZ NOT NULL,
			status INTEGER NOT NULL,
			headers BYTEA NOT NULL,
			body BYTEA NOT NULL
		)
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// Close closes the pool or connection.
func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// NewWithPool returns a new Store using the provided connection pool.
func NewWithPool(pool *pgxpool.Pool, config *Config) (*Store, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	return newStore(pool, pool.Close, config), nil
}

// NewWithConn returns a new Store using the provided connection.
func NewWithConn(conn *pgx.Conn, config *Config) (*Store, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	closer := func() {
		if err := conn.Close(context.Background()); err != nil {
			responsecache.GetLogger().Warn("failed to close postgresql connection", "error", err)
		}
	}
	return newStore(conn, closer, config), nil
}

// New creates a new Store with a connection pool from the given connection
// string and creates the table if needed.
func New(ctx context.Context, connString string, config *Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	store := newStore(pool, pool.Close, config)
	if err := store.CreateTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}
