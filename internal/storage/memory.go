package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps objects in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Find reports whether the named object exists.
func (s *MemoryStore) Find(_ context.Context, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[name]; !ok {
		return "", false, nil
	}
	return s.link(name), true, nil
}

// Create stores a copy of the data and returns a pseudo link.
func (s *MemoryStore) Create(_ context.Context, name string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = append([]byte(nil), data...)
	return s.link(name), nil
}

// Object returns the stored bytes for assertions in tests.
func (s *MemoryStore) Object(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[name]
	return data, ok
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MemoryStore) link(name string) string {
	return fmt.Sprintf("memory://%s", name)
}
