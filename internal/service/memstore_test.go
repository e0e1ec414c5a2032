package service

import (
	"errors"
	"sync"
)

// memStore is an in-memory domain.KVStore that can be told to fail writes.
type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	writes  int
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("disk full")
	}
	m.writes++
	m.data[key] = value
	return nil
}
