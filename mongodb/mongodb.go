// Package mongodb provides a MongoDB backed responsecache.Store.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sandrolain/responsecache"
)

// Config holds the configuration for creating a MongoDB store.
type Config struct {
	// URI is the MongoDB connection URI (e.g., "mongodb://localhost:27017").
	// Required field.
	URI string

	// Database is the name of the database holding entries.
	// Required field.
	Database string

	// Collection is the name of the collection holding entries.
	// Optional - defaults to "responsecache".
	Collection string

	// KeyPrefix is a prefix added to every cache id.
	// Optional - defaults to "cache:".
	KeyPrefix string

	// Timeout is the timeout for database operations.
	// Optional - defaults to 5 seconds.
	Timeout time.Duration

	// TTL lets MongoDB remove documents that long after they were written.
	// Optional - if set, creates a TTL index on the writtenAt field.
	TTL time.Duration

	// ClientOptions are additional options to pass to mongo.Connect.
	// Optional.
	ClientOptions *options.ClientOptions
}

// document is the stored form of an entry. Modified may be pre-dated, so
// expiry by the server is keyed on WrittenAt instead.
type document struct {
	ID        string              `bson:"_id"`
	Modified  time.Time           `bson:"modified"`
	Status    int                 `bson:"status"`
	Header    map[string][]string `bson:"header"`
	Body      []byte              `bson:"body"`
	WrittenAt time.Time           `bson:"writtenAt"`
}

// Store is an implementation of responsecache.Store that keeps responses in
// MongoDB, one document per cache id.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	keyPrefix  string
	timeout    time.Duration
}

func (s *Store) key(id string) string {
	return s.keyPrefix + id
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.collection.FindOne(ctx, bson.M{"_id": s.key(id)}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("mongodb store get failed for id %q: %w", id, err)
	}

	var doc document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("mongodb store id %q: %w: %v", id, responsecache.ErrMalformedEntry, err)
	}

	return responsecache.Entry{
		Modified: time.Unix(doc.Modified.Unix(), 0),
		Status:   doc.Status,
		Header:   http.Header(doc.Header),
		Body:     doc.Body,
	}, true, nil
}

// Set replaces the document under id.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	entry = entry.Stamp(now)
	header := map[string][]string(entry.Header)
	if header == nil {
		header = map[string][]string{}
	}
	doc := document{
		ID:        s.key(id),
		Modified:  entry.Modified.UTC(),
		Status:    entry.StatusCode(),
		Header:    header,
		Body:      entry.Body,
		WrittenAt: now.UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		if errors.Is(err, mongo.ErrClientDisconnected) {
			return fmt.Errorf("mongodb store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("mongodb store set failed for id %q: %w", id, err)
	}
	return nil
}

// Close disconnects from MongoDB when the client was created by New.
func (s *Store) Close() error {
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.client.Disconnect(ctx)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Collection: "responsecache",
		KeyPrefix:  "cache:",
		Timeout:    5 * time.Second,
	}
}

// New creates a new Store with the given configuration.
// It establishes a connection to MongoDB and creates the necessary indexes.
// The caller should call Close() on the returned store when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("MongoDB URI is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	if config.Collection == "" {
		config.Collection = DefaultConfig().Collection
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	if config.ClientOptions != nil {
		clientOpts = config.ClientOptions.ApplyURI(config.URI)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, config.Timeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
			responsecache.GetLogger().Warn("failed to disconnect client after ping error", "error", disconnectErr)
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}

	if config.TTL > 0 {
		if err := s.createTTLIndex(ctx, config.TTL); err != nil {
			if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
				responsecache.GetLogger().Warn("failed to disconnect client after TTL index error", "error", disconnectErr)
			}
			return nil, fmt.Errorf("failed to create TTL index: %w", err)
		}
	}

	return s, nil
}

// NewWithClient returns a new Store with the given MongoDB client.
// The returned store will not close the client when Close() is called.
func NewWithClient(client *mongo.Client, database, collection string, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("MongoDB client is required")
	}
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	if collection == "" {
		collection = DefaultConfig().Collection
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &Store{
		collection: client.Database(database).Collection(collection),
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}, nil
}

// createTTLIndex creates a TTL index on the writtenAt field.
func (s *Store) createTTLIndex(ctx context.Context, ttl time.Duration) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "writtenAt", Value: 1}},
		Options: options.Index().
			SetExpireAfterSeconds(int32(ttl.Seconds())).
			SetName("responsecache_ttl"),
	}

	indexCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateOne(indexCtx, indexModel)
	return err
}
