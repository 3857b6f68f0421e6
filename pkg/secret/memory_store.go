package secret

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Ensure returns the stored value for name, generating it first if absent.
func (s *MemoryStore) Ensure(name string, gen Generator) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.values[name]; ok {
		return value, nil
	}

	value, err := gen()
	if err != nil {
		return "", err
	}
	s.values[name] = value
	return value, nil
}

// Get returns the stored value and whether it exists.
func (s *MemoryStore) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[name]
	return value, ok, nil
}

// Keys returns all stored secret names, sorted.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
