package locking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a Group backed by advisory file locks in a directory, so
// several processes sharing one store can exclude each other. The
// in-process lock for the key is always taken before the file lock.
type FileLock struct {
	dir   string
	local *MemLock
}

// NewFileLock creates the lock directory if needed.
func NewFileLock(dir string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &FileLock{dir: dir, local: NewMemLock()}, nil
}

func (l *FileLock) DoWithLock(key string, fn func() (interface{}, error)) (interface{}, error) {
	return l.local.DoWithLock(key, func() (interface{}, error) {
		fl := flock.New(l.path(key))
		if err := fl.Lock(); err != nil {
			return nil, fmt.Errorf("lock %q: %w", key, err)
		}
		defer fl.Unlock()
		return fn()
	})
}

func (l *FileLock) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(l.dir, hex.EncodeToString(sum[:])+".lock")
}
