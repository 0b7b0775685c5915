package memory

import (
	"context"
	"sync"

	"github.com/vietddude/kitchenline/internal/infra/storage"
)

// Storage is an in-process backend. Values do not survive a restart.
type Storage struct {
	values map[string]string
	mu     sync.RWMutex
}

var _ storage.Backend = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{
		values: make(map[string]string),
	}
}

func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *Storage) RemoveMany(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *Storage) Close() error {
	return nil
}
