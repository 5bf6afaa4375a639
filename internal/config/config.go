// Package config loads the responsecache proxy configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends understood by Store.Backend.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendDisk      = "disk"
	BackendLevelDB   = "leveldb"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendMemcache  = "memcache"
	BackendFreecache = "freecache"
	BackendPostgres  = "postgres"
	BackendMongoDB   = "mongodb"
	BackendNATS      = "natskv"
	BackendHazelcast = "hazelcast"
	BackendBlob      = "blob"
	BackendS3        = "s3"
)

var backends = []string{
	BackendMemory, BackendFile, BackendDisk, BackendLevelDB, BackendSQLite,
	BackendRedis, BackendMemcache, BackendFreecache, BackendPostgres,
	BackendMongoDB, BackendNATS, BackendHazelcast, BackendBlob, BackendS3,
}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server  Server  `yaml:"server"`
	Cache   Cache   `yaml:"cache"`
	Store   Store   `yaml:"store"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
	Prewarm Prewarm `yaml:"prewarm"`
}

type Server struct {
	Listen            string        `yaml:"listen"`
	Origin            string        `yaml:"origin"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

type Cache struct {
	// Lifetime of a stored response. Zero disables caching.
	Lifetime time.Duration `yaml:"lifetime"`
	// VaryHeaders are request headers folded into the cache id.
	VaryHeaders   []string `yaml:"varyHeaders"`
	MarkResponses bool     `yaml:"markResponses"`
	Conditional   bool     `yaml:"conditional"`
	// Lock serializes regenerations of one id: "", "memory" or "file".
	Lock    string `yaml:"lock"`
	LockDir string `yaml:"lockDir"`
	// Retries and BreakerThreshold enable the store resilience policies.
	Retries          int `yaml:"retries"`
	BreakerThreshold int `yaml:"breakerThreshold"`
}

type Store struct {
	Backend string `yaml:"backend"`
	// Path is the directory or DSN of local backends.
	Path string `yaml:"path"`
	// Addresses of network backends. URL-style backends use the first one.
	Addresses  []string      `yaml:"addresses"`
	Password   string        `yaml:"password"`
	Database   string        `yaml:"database"`
	Bucket     string        `yaml:"bucket"`
	KeyPrefix  string        `yaml:"keyPrefix"`
	Region     string        `yaml:"region"`
	Endpoint   string        `yaml:"endpoint"`
	Expiration time.Duration `yaml:"expiration"`
	// Size in bytes for freecache, and for the memory tier.
	Size int `yaml:"size"`

	// Compression of bodies at rest: "", "gzip", "brotli" or "snappy".
	Compression string `yaml:"compression"`
	// Passphrase enables id hashing and encryption at rest.
	Passphrase string `yaml:"passphrase"`
	// MemoryTier puts a freecache tier of this many bytes in front.
	MemoryTier int `yaml:"memoryTier"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// StatsInterval logs latency quantiles periodically. Zero disables it.
	StatsInterval time.Duration `yaml:"statsInterval"`
}

type Prewarm struct {
	URLs    []string `yaml:"urls"`
	Sitemap string   `yaml:"sitemap"`
	Workers int      `yaml:"workers"`
}

// Default returns the configuration used for absent keys.
func Default() Config {
	return Config{
		Server: Server{
			Listen:            ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Cache: Cache{
			Lifetime:      5 * time.Minute,
			MarkResponses: true,
		},
		Store: Store{
			Backend: BackendMemory,
			Size:    64 << 20,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
		Prewarm: Prewarm{
			Workers: 4,
		},
	}
}

// Read decodes a YAML file over the defaults without validating it.
func Read(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load is Read followed by Validate.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...))
}

// Validate checks the configuration and normalizes the origin URL.
func (c *Config) Validate() error {
	if c.Server.Origin == "" {
		return invalid("server.origin", "required")
	}
	u, err := url.Parse(c.Server.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("server.origin", "%q is not an absolute URL", c.Server.Origin)
	}
	c.Server.Origin = strings.TrimRight(c.Server.Origin, "/")
	if c.Server.Listen == "" {
		return invalid("server.listen", "required")
	}

	if c.Cache.Lifetime < 0 {
		return invalid("cache.lifetime", "must not be negative")
	}
	switch c.Cache.Lock {
	case "", "memory":
	case "file":
		if c.Cache.LockDir == "" {
			return invalid("cache.lockDir", "required for file locks")
		}
	default:
		return invalid("cache.lock", "unknown lock %q", c.Cache.Lock)
	}
	if c.Cache.Retries < 0 || c.Cache.BreakerThreshold < 0 {
		return invalid("cache", "retries and breakerThreshold must not be negative")
	}

	if err := c.Store.validate(); err != nil {
		return err
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format", "must be console or json, got %q", c.Log.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "must start with /")
	}
	if c.Prewarm.Workers < 1 {
		c.Prewarm.Workers = 1
	}
	return nil
}

func (s *Store) validate() error {
	known := false
	for _, b := range backends {
		if s.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return invalid("store.backend", "unknown backend %q", s.Backend)
	}

	switch s.Backend {
	case BackendFile, BackendDisk, BackendLevelDB, BackendSQLite:
		if s.Path == "" {
			return invalid("store.path", "required for %s", s.Backend)
		}
	case BackendRedis, BackendMemcache, BackendPostgres, BackendMongoDB:
		if len(s.Addresses) == 0 {
			return invalid("store.addresses", "required for %s", s.Backend)
		}
	case BackendBlob:
		if s.Path == "" {
			return invalid("store.path", "bucket URL required for blob")
		}
	case BackendS3, BackendNATS:
		if s.Bucket == "" {
			return invalid("store.bucket", "required for %s", s.Backend)
		}
	case BackendFreecache:
		if s.Size <= 0 {
			return invalid("store.size", "must be positive")
		}
	}
	if s.Backend == BackendMongoDB && s.Database == "" {
		return invalid("store.database", "required for mongodb")
	}

	switch s.Compression {
	case "", "gzip", "brotli", "snappy":
	default:
		return invalid("store.compression", "unknown algorithm %q", s.Compression)
	}
	if s.MemoryTier < 0 {
		return invalid("store.memoryTier", "must not be negative")
	}
	return nil
}
