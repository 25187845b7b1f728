package persist

import "sync"

// Store is the key-value backend the persistence plugin writes to.
// Implementations must be safe to call from the stack's goroutine; failures
// are returned as errors and never panic into the core.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	// Set stores the value for key.
	Set(key, value string) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error
	// Close releases backend resources.
	Close() error
}

// MemStore is an in-memory Store. Useful for tests and ephemeral sessions.
type MemStore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

// Get implements Store.
func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set implements Store.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close implements Store.
func (s *MemStore) Close() error {
	return nil
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
