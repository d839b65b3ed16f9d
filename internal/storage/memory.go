// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"io"
	"sync"
)

// MemStore keeps objects in memory. Test use only.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

// NewMemStore returns an empty in-memory object store.
func NewMemStore(baseURL string) *MemStore {
	return &MemStore{objects: make(map[string][]byte), baseURL: baseURL}
}

func (s *MemStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return s.baseURL + "/" + key, nil
}

// Get returns a stored object for test assertions.
func (s *MemStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}
