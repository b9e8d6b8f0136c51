// Package memory stores archived payloads in-memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// ArchiveStore keeps payloads in a map and returns pseudo URIs.
type ArchiveStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory archive store.
func New() *ArchiveStore {
	return &ArchiveStore{data: make(map[string][]byte)}
}

// PutObject persists the content and returns a URI.
func (s *ArchiveStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns the stored content for a path.
func (s *ArchiveStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
