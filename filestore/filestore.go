// Package filestore provides a responsecache.Store keeping one JSON file per
// cache id in a directory. The entry's modification time is the file's
// mtime, so entries can be inspected and pre-dated with ordinary tools.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"

	"github.com/sandrolain/responsecache"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// lockDir holds the advisory lock files, away from the entries.
const lockDir = ".locks"

// file is the on-disk document. The modification time is not part of it.
type file struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

// Store is a responsecache.Store rooted at a directory that must already
// exist and be writable.
type Store struct {
	dir string
}

// New returns a Store writing into dir. The directory is not created.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// path maps id to its file. Ids that are not plain file names are hashed.
func (s *Store) path(id string) string {
	name := id
	if !safeID.MatchString(id) {
		sum := sha256.Sum256([]byte(id))
		name = hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.dir, name+".json")
}

// Get returns the entry stored under id.
func (s *Store) Get(_ context.Context, id string) (responsecache.Entry, bool, error) {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("filestore read %q: %w", id, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("filestore stat %q: %w", id, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("filestore %q: %w: %v", id, responsecache.ErrMalformedEntry, err)
	}
	header := http.Header(f.Headers)
	if header == nil {
		header = http.Header{}
	}
	return responsecache.Entry{
		Modified: time.Unix(info.ModTime().Unix(), 0),
		Status:   f.Status,
		Header:   header,
		Body:     f.Body,
	}, true, nil
}

// Set writes the entry under id through a temporary file and a rename.
// Writers of the same id are serialized with an advisory lock file kept
// in the .locks subdirectory.
func (s *Store) Set(_ context.Context, id string, entry responsecache.Entry) error {
	if info, err := os.Stat(s.dir); err != nil || !info.IsDir() {
		return fmt.Errorf("filestore directory %q does not exist or is not writable: %w", s.dir, responsecache.ErrStorageUnavailable)
	}

	data, err := json.Marshal(file{
		Status:  entry.StatusCode(),
		Headers: entry.Header,
		Body:    entry.Body,
	})
	if err != nil {
		return fmt.Errorf("filestore encode %q: %w", id, err)
	}

	path := s.path(id)
	locks := filepath.Join(s.dir, lockDir)
	if err := os.MkdirAll(locks, 0o755); err != nil {
		return fmt.Errorf("filestore lock directory: %w: %w", responsecache.ErrStorageUnavailable, err)
	}
	lock := flock.New(filepath.Join(locks, filepath.Base(path)+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("filestore lock %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
	}
	defer lock.Unlock()

	if err := s.writeFile(path, data, entry.Modified); err != nil {
		return fmt.Errorf("filestore write %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) writeFile(path string, data []byte, modified time.Time) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if !modified.IsZero() {
		modified = time.Unix(modified.Unix(), 0)
		if err := os.Chtimes(tmp.Name(), modified, modified); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), path)
}
