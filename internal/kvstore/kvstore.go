// Package kvstore provides a durable whole-document JSON store used by the
// karma and history stores. Each Store maps to one file on disk; writes
// replace the entire document atomically (temp file + rename), so a crash
// mid-write never leaves a torn document behind.
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a durable mapping from string keys to JSON values, backed by a
// single file. Safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store backed by the given file path. The file is created on
// first save; a missing file reads as an empty document.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the whole document into dest. A missing file leaves dest
// untouched and returns nil, so first-run startup needs no special casing.
func (s *Store) Load(dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("kvstore: failed to read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("kvstore: failed to decode %s: %w", s.path, err)
	}
	return nil
}

// Save atomically replaces the whole document with doc. The document is
// written to a temp file in the same directory and renamed into place.
func (s *Store) Save(doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: failed to encode %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvstore: failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("kvstore: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: failed to replace %s: %w", s.path, err)
	}
	return nil
}
