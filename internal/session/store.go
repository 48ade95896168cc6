// Package session implements the bootstrap state machine that resolves a
// (visitor UUID, active conversation) pair, repairing stale local identity
// against the upstream backend.
package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the single-slot cache holding the visitor UUID between runs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the cached UUID and whether one is present.
	Get() (string, bool)
	// Set replaces the slot content.
	Set(uuid string) error
	// Clear empties the slot.
	Clear() error
}

// MemoryStore keeps the slot in memory. The gateway uses one per widget
// session; tests use it as a double.
type MemoryStore struct {
	mu   sync.Mutex
	uuid string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uuid, s.uuid != ""
}

func (s *MemoryStore) Set(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uuid = uuid
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uuid = ""
	return nil
}

// FileStore persists the slot as a single file, for embedders that outlive
// a process (CLI hosts, desktop shells).
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	uuid := strings.TrimSpace(string(raw))
	return uuid, uuid != ""
}

func (s *FileStore) Set(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(uuid+"\n"), 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
