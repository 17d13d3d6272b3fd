// ABOUTME: In-memory key-value store used by tests and the MCP server's ephemeral mode.
// ABOUTME: Same semantics as FileStore without touching disk.
package storage

import "sync"

// MemoryStore keeps key-value pairs in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key, or empty string if unset.
func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set persists a single value.
func (s *MemoryStore) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany applies all updates under one lock. Empty values remove the key.
func (s *MemoryStore) SetMany(updates map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		if v == "" {
			delete(s.values, k)
			continue
		}
		s.values[k] = v
	}
	return nil
}

// Remove deletes a key.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Clear deletes every key.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
